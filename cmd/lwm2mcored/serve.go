package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cuemby/lwm2mcore/pkg/attr"
	"github.com/cuemby/lwm2mcore/pkg/config"
	"github.com/cuemby/lwm2mcore/pkg/debugapi"
	"github.com/cuemby/lwm2mcore/pkg/dm"
	"github.com/cuemby/lwm2mcore/pkg/dmpath"
	"github.com/cuemby/lwm2mcore/pkg/log"
	"github.com/cuemby/lwm2mcore/pkg/metrics"
	"github.com/cuemby/lwm2mcore/pkg/msgio"
	"github.com/cuemby/lwm2mcore/pkg/objects"
	"github.com/cuemby/lwm2mcore/pkg/observe"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the engine with the debug HTTP+JSON service and notification pump",
	Long: `serve builds an in-memory data model seeded with the built-in
Security, Server, Device, Firmware Update and Access Control objects,
starts the notification pump against it, and exposes the debug
HTTP+JSON service (tree/observations/attributes dumps plus
health/ready/live/metrics) until interrupted.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("config", "", "Path to a YAML config file (defaults applied if omitted)")
	serveCmd.Flags().String("addr", "127.0.0.1:8090", "Debug HTTP+JSON service listen address")
	serveCmd.Flags().Duration("tick", time.Second, "Notification pump evaluation interval")
	serveCmd.Flags().Bool("demo-observe", true, "Seed a demo observation on the Device manufacturer resource")
}

func runServe(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	addr, _ := cmd.Flags().GetString("addr")
	tick, _ := cmd.Flags().GetDuration("tick")
	demoObserve, _ := cmd.Flags().GetBool("demo-observe")

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	broker := objects.NewBroker()
	security := objects.NewSecurity()
	server := objects.NewServer(broker)
	device := objects.NewDevice(broker)
	firmware := objects.NewFirmwareUpdate(broker)
	accessControl := objects.NewAccessControl()

	// Object() wires and returns each adapter's *dm.Object exactly once;
	// it must not be called again afterwards or the adapter would start
	// mutating a descriptor the model no longer has registered.
	serverObj := server.Object()
	model := dm.New(cfg.Limits.ToDataModelLimits())
	for _, obj := range []*dm.Object{
		security.Object(),
		serverObj,
		device.Object(),
		firmware.Object(),
		accessControl.Object(),
	} {
		if err := model.AddObject(obj); err != nil {
			return err
		}
	}
	cfg.SeedBuiltins(security, server, device)

	attrs := attr.NewStore(cfg.Limits.MaxWriteAttributes, model)
	table := observe.NewTable(cfg.Limits.MaxObservations, attrs, model, model, model)
	sender := &loggingSender{model: model}
	pump := observe.NewPump(table, model, sender, tick)
	model.Watch(dm.WatcherFunc(func(dm.Change) { pump.NotifyChanged() }))

	if demoObserve && len(serverObj.Instances) > 0 {
		iid := serverObj.Instances[0].IID
		ssidValue, ok := model.ReadCurrent(dmpath.Resource(1, iid, objects.ServerRIDShortServerID))
		if !ok {
			return fmt.Errorf("failed to read seeded server instance %d's short server id", iid)
		}
		ssid := uint16(ssidValue.Int)
		token := uuid.NewString()
		path := dmpath.Resource(3, 0, objects.DeviceRIDManufacturer)
		if _, err := table.AddObservation(ssid, []byte(token), path, attr.Attributes{}, int(msgio.FormatLwM2MJSON), int(msgio.FormatLwM2MJSON), time.Now(), server.DefaultPeriods(ssid)); err != nil {
			log.Error("failed to seed demo observation: " + err.Error())
		}
	}

	pump.Start()
	defer pump.Stop()

	collector := metrics.NewCollector(model, table, attrs, pump)
	collector.Start()
	defer collector.Stop()

	metrics.SetVersion(Version)
	metrics.RegisterComponent("debugapi", true, "ready")

	debugSrv := debugapi.NewServer(model, table, attrs)
	errCh := make(chan error, 1)
	go func() {
		if err := debugSrv.Start(addr); err != nil {
			errCh <- err
		}
	}()

	log.Info("lwm2mcored serving debug HTTP+JSON service on " + addr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Info("shutting down")
	case err := <-errCh:
		return err
	}

	return nil
}

// loggingSender stands in for a real CoAP transport (out of scope, see
// pkg/coapshim's doc comment): it renders the notification payload with
// pkg/msgio and logs it rather than putting bytes on a wire.
type loggingSender struct {
	model *dm.DataModel
}

func (s *loggingSender) Send(p observe.Pending, now time.Time) error {
	entries := make([]dm.Entry, 0, len(p.Members))
	for _, m := range p.Members {
		v, ok := s.model.ReadCurrent(m.Path)
		if !ok {
			continue
		}
		entries = append(entries, dm.Entry{Path: m.Path, Value: v})
	}

	var accept *msgio.ContentFormat
	if p.Accept != 0 {
		a := msgio.ContentFormat(p.Accept)
		accept = &a
	}
	out, _, more, format, err := msgio.BuildMsg(entries, 0, 4096, accept, len(p.Members) > 1)
	if err != nil {
		return err
	}

	log.WithSSID(p.SSID).Info().Msg("notification sent")
	log.Logger.Debug().
		Str("token", p.Token).
		Int("format", int(format)).
		Bool("more", more).
		Int("bytes", len(out)).
		Msg("notification payload")
	return nil
}
