package opcua

import (
	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"
)

// notificationAdapter unwraps the raw PublishNotificationData channel
// gopcua hands back from Client.Subscribe into a channel of the
// *ua.DataChangeNotification payloads the Change Pump cares about,
// discarding keep-alives and other notification types.
func notificationAdapter(raw <-chan *opcua.PublishNotificationData) <-chan *ua.DataChangeNotification {
	out := make(chan *ua.DataChangeNotification, cap(raw))
	go func() {
		defer close(out)
		for data := range raw {
			if data.Error != nil {
				continue
			}
			change, ok := data.Value.(*ua.DataChangeNotification)
			if !ok {
				continue
			}
			out <- change
		}
	}()
	return out
}
