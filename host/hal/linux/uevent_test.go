package linux

import "testing"

// =============================================================================
// uevent Parsing Tests
// =============================================================================

func TestParseUEvent(t *testing.T) {
	tests := []struct {
		name      string
		data      string
		want      uevent
		usbDevice bool
	}{
		{
			name: "device add",
			data: "add@/devices/pci0000:00/0000:00:14.0/usb1/1-1\x00" +
				"ACTION=add\x00" +
				"DEVPATH=/devices/pci0000:00/0000:00:14.0/usb1/1-1\x00" +
				"SUBSYSTEM=usb\x00" +
				"DEVTYPE=usb_device\x00" +
				"BUSNUM=001\x00" +
				"DEVNUM=002\x00",
			want: uevent{
				action:    ueventAdd,
				devpath:   "/devices/pci0000:00/0000:00:14.0/usb1/1-1",
				subsystem: "usb",
				devtype:   "usb_device",
			},
			usbDevice: true,
		},
		{
			name: "device remove",
			data: "remove@/devices/pci0000:00/0000:00:14.0/usb1/1-1\x00" +
				"ACTION=remove\x00" +
				"SUBSYSTEM=usb\x00" +
				"DEVTYPE=usb_device\x00",
			want: uevent{
				action:    ueventRemove,
				devpath:   "/devices/pci0000:00/0000:00:14.0/usb1/1-1",
				subsystem: "usb",
				devtype:   "usb_device",
			},
			usbDevice: true,
		},
		{
			name: "interface add",
			data: "add@/devices/pci0000:00/usb1/1-1/1-1:1.0\x00" +
				"ACTION=add\x00" +
				"SUBSYSTEM=usb\x00" +
				"DEVTYPE=usb_interface\x00",
			want: uevent{
				action:    ueventAdd,
				devpath:   "/devices/pci0000:00/usb1/1-1/1-1:1.0",
				subsystem: "usb",
				devtype:   "usb_interface",
			},
		},
		{
			name: "driver bind",
			data: "bind@/devices/pci0000:00/usb1/1-1\x00" +
				"ACTION=bind\x00" +
				"SUBSYSTEM=usb\x00" +
				"DEVTYPE=usb_device\x00",
			want: uevent{
				action:    ueventBind,
				devpath:   "/devices/pci0000:00/usb1/1-1",
				subsystem: "usb",
				devtype:   "usb_device",
			},
		},
		{
			name: "other subsystem",
			data: "change@/devices/virtual/net/lo\x00ACTION=change\x00SUBSYSTEM=net\x00",
			want: uevent{action: ueventChange, devpath: "/devices/virtual/net/lo", subsystem: "net"},
		},
		{
			name: "udev relay",
			data: "libudev\x00\xfe\xed\xca\xfe",
			want: uevent{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseUEvent([]byte(tt.data))
			if got != tt.want {
				t.Errorf("parseUEvent() = %+v, want %+v", got, tt.want)
			}
			if got.isUSBDevice() != tt.usbDevice {
				t.Errorf("isUSBDevice() = %v, want %v", got.isUSBDevice(), tt.usbDevice)
			}
		})
	}
}
