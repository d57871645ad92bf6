package main

import (
	"fmt"
	"strings"

	"xtouchd/internal/device"
	"xtouchd/internal/device/hidapi"
	"xtouchd/internal/device/libusb"
)

// openBackend returns the device opener for a backend name along with its
// cleanup.
func openBackend(name string) (device.Opener, func() error, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "usb":
		o := libusb.NewOpener()
		return o, o.Close, nil
	case "hid":
		o, err := hidapi.NewOpener()
		if err != nil {
			return nil, nil, err
		}
		return o, o.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend %q (want usb or hid)", name)
	}
}
