// Package usbid looks up vendor and product names in a usb.ids database,
// the file distributed with usbutils and hwdata.
//
//	db, err := usbid.Load()
//	if err == nil {
//	    fmt.Println(db.Describe(0x0525, 0xa4a0))
//	}
//
// A Database is read-only after it is built and safe for concurrent use.
package usbid

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/ardnew/usbf/pkg"
)

// DefaultPaths lists the usual locations of usb.ids.
var DefaultPaths = []string{
	"/usr/share/hwdata/usb.ids",
	"/var/lib/usbutils/usb.ids",
	"/usr/share/misc/usb.ids",
	"/usr/share/usb.ids",
}

// Database maps vendor and product IDs to names.
type Database struct {
	vendors  map[uint16]string
	products map[uint32]string
}

// Load parses the first of paths that exists, DefaultPaths when none are
// given. It returns an error wrapping fs.ErrNotExist when no file exists.
func Load(paths ...string) (*Database, error) {
	if len(paths) == 0 {
		paths = DefaultPaths
	}
	for _, path := range paths {
		f, err := os.Open(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		db, err := Parse(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("usbid %s: %w", path, err)
		}
		pkg.LogDebug(pkg.ComponentGadget, "usb.ids loaded", "path", path,
			"vendors", db.Vendors(), "products", db.Products())
		return db, nil
	}
	return nil, fmt.Errorf("usb.ids: %w", fs.ErrNotExist)
}

// Parse reads the usb.ids format: vendor lines "vvvv  name", each
// followed by product lines "\tpppp  name". Sections after the vendor
// list (classes, languages, ...) are skipped.
func Parse(r io.Reader) (*Database, error) {
	db := &Database{
		vendors:  make(map[uint16]string),
		products: make(map[uint32]string),
	}
	var (
		vid    uint16
		vendor bool
	)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if line == "" || line[0] == '#' {
			continue
		}
		indented := line[0] == '\t'
		id, name, ok := entry(strings.TrimPrefix(line, "\t"))
		switch {
		case !indented:
			vendor = ok
			if ok {
				vid = id
				db.vendors[id] = name
			}
		case vendor && ok && !strings.HasPrefix(line, "\t\t"):
			db.products[key(vid, id)] = name
		}
	}
	return db, sc.Err()
}

// entry splits "xxxx  name".
func entry(s string) (uint16, string, bool) {
	if len(s) < 6 || s[4] != ' ' {
		return 0, "", false
	}
	id, err := strconv.ParseUint(s[:4], 16, 16)
	if err != nil {
		return 0, "", false
	}
	name := strings.TrimSpace(s[5:])
	return uint16(id), name, name != ""
}

func key(vid, pid uint16) uint32 { return uint32(vid)<<16 | uint32(pid) }

// Vendor returns the vendor name of vid, or "".
func (db *Database) Vendor(vid uint16) string { return db.vendors[vid] }

// Product returns the product name of vid:pid, or "".
func (db *Database) Product(vid, pid uint16) string { return db.products[key(vid, pid)] }

// Vendors returns the number of vendors.
func (db *Database) Vendors() int { return len(db.vendors) }

// Products returns the number of products.
func (db *Database) Products() int { return len(db.products) }

// Describe formats vid:pid with whatever names are known, the way lsusb
// prints them.
func (db *Database) Describe(vid, pid uint16) string {
	s := fmt.Sprintf("%04x:%04x", vid, pid)
	if v := db.Vendor(vid); v != "" {
		s += " " + v
		if p := db.Product(vid, pid); p != "" {
			s += " " + p
		}
	}
	return s
}
