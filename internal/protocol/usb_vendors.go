// internal/protocol/usb_vendors.go
package protocol

import "strings"

// VendorInfo describes a USB vendor seen on serial ports
type VendorInfo struct {
	Name string
	// Scanner is set for vendors that ship scanners with a native USB port
	Scanner bool
}

// usbVendors maps lowercase hex vendor IDs to known vendors
var usbVendors = map[string]VendorInfo{
	"1965": {Name: "Uniden America Corp.", Scanner: true},
	"0403": {Name: "Future Technology Devices International"},
	"067b": {Name: "Prolific Technology"},
	"10c4": {Name: "Silicon Labs"},
	"1a86": {Name: "QinHeng Electronics"},
}

// LookupVendor returns the vendor for a hex USB vendor ID
func LookupVendor(vendorID string) (VendorInfo, bool) {
	info, ok := usbVendors[strings.TrimPrefix(strings.ToLower(vendorID), "0x")]
	return info, ok
}
