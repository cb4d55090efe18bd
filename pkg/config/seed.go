package config

import "github.com/cuemby/lwm2mcore/pkg/objects"

// SeedBuiltins applies the Security/Server/Device defaults from cfg to the
// already-registered built-in object adapters. Called once at startup
// (cmd/lwm2mcored's serve command), before the notification pump starts.
func (c *Config) SeedBuiltins(security *objects.Security, server *objects.Server, device *objects.Device) {
	for _, s := range c.Security {
		security.Seed(objects.SecurityInstance{
			IID:             s.IID,
			URI:             s.URI,
			BootstrapServer: s.BootstrapServer,
			SecurityMode:    s.SecurityMode,
			ShortServerID:   s.ShortServerID,
		})
	}
	for _, s := range c.Server {
		server.Seed(objects.ServerInstance{
			IID:              s.IID,
			SSID:             s.SSID,
			Lifetime:         s.Lifetime,
			DefaultMinPeriod: s.DefaultMinPeriod,
			DefaultMaxPeriod: s.DefaultMaxPeriod,
			Binding:          s.Binding,
		})
	}
	device.Manufacturer = c.Device.Manufacturer
	device.ModelNumber = c.Device.ModelNumber
	device.SerialNumber = c.Device.SerialNumber
}
