package central

import "github.com/srg/blecentral/internal/radio"

// radioHandler moves radio callbacks onto the dispatch loop.
type radioHandler struct {
	c *Central
}

func (h *radioHandler) OnAdvertisement(adv radio.Advertisement) {
	h.c.post(func() { h.c.handleAdvertisement(adv) })
}

func (h *radioHandler) OnConnectionState(address string, state radio.LinkState, err error) {
	h.c.post(func() { h.c.handleLinkState(address, state, err) })
}

func (h *radioHandler) OnServicesDiscovered(address string, services []radio.ServiceInfo, err error) {
	h.c.post(func() { h.c.handleServices(address, services, err) })
}

func (h *radioHandler) OnCharacteristicRead(address string, ref radio.CharRef, value []byte, err error) {
	h.c.post(func() { h.c.handleRead(address, ref, value, err) })
}

func (h *radioHandler) OnCharacteristicWrite(address string, ref radio.CharRef, err error) {
	h.c.post(func() { h.c.handleWrite(address, ref, err) })
}

func (h *radioHandler) OnSubscribed(address string, ref radio.CharRef, err error) {
	h.c.post(func() { h.c.handleSubscribed(address, ref, err) })
}

func (h *radioHandler) OnNotification(address string, ref radio.CharRef, value []byte) {
	h.c.post(func() { h.c.handleNotification(address, ref, value) })
}

func (h *radioHandler) OnRSSI(address string, rssi int, err error) {
	h.c.post(func() { h.c.handleRSSI(address, rssi, err) })
}
