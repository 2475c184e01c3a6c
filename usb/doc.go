// Package usb defines the chapter 9 wire types shared by the controller
// engine and function drivers: the Setup packet, standard request codes,
// feature selectors and the standard descriptors.
//
// Encoders follow the append convention:
//
//	b := dev.AppendBinary(nil)
//	b = cfg.AppendBinary(b)
package usb
