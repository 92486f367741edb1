// Package hci implements the radio capability on a raw Linux HCI socket
// through paypal/gatt. On other platforms the factory reports the adapter
// as unavailable.
package hci
