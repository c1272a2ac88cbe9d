package link

import "github.com/sweeney/ble-button/internal/gatt"

// subscriptions reports every notify/indicate-capable characteristic as
// subscribed.
func subscriptions(services []gatt.Service) []gatt.Event {
	var out []gatt.Event
	for _, svc := range services {
		for _, c := range svc.Characteristics {
			n := c.Properties.Has(gatt.PropNotify)
			i := c.Properties.Has(gatt.PropIndicate)
			if !n && !i {
				continue
			}
			out = append(out, gatt.Event{
				Kind:          gatt.EventSubscribe,
				Handle:        c.Handle,
				Notifications: n,
				Indications:   i,
			})
		}
	}
	return out
}
