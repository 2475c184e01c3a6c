// Package gadget provides a function driver for the usbf controller.
//
// A [Gadget] answers the standard requests the controller delegates:
// device, configuration, other-speed, string and qualifier descriptors,
// GET/SET_CONFIGURATION and GET/SET_INTERFACE. It implements two vendor
// requests on endpoint 0:
//
//   - [VendorStore] (control write) fills the vendor buffer
//   - [VendorEcho] (control read) returns it
//
// Other vendor requests go to the optional [Gadget.Vendor] hook.
//
// With Config.Loopback set, configuration 1 enables a bulk endpoint pair
// that echoes every OUT transfer on the IN endpoint:
//
//	g, _ := gadget.New(gadget.DefaultConfig())
//	if err := c.Bind(g); err != nil {
//	    return err
//	}
package gadget
