package obex

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
)

// FolderListingType is the TYPE header body requesting a folder listing:
// "x-obex/folder-listing" with its terminating NUL.
var FolderListingType = []byte("x-obex/folder-listing\x00")

// Folder is a <folder> entry of a folder listing.
type Folder struct {
	Name     string `json:"name"`
	Modified string `json:"modified"`
}

// File is a <file> entry of a folder listing.
type File struct {
	Name     string `json:"name"`
	Modified string `json:"modified"`
	Size     int64  `json:"size"`
	SizeText string `json:"-"`
}

// FolderListing is the parsed x-obex/folder-listing document.
type FolderListing struct {
	Folders []Folder `json:"folders"`
	Files   []File   `json:"files"`
}

// xmlListing takes entries under whatever root element the device sends.
type xmlListing struct {
	Folders []xmlFolder `xml:"folder"`
	Files   []xmlFile   `xml:"file"`
}

type xmlFolder struct {
	Name     string `xml:"name,attr"`
	Modified string `xml:"modified,attr"`
}

type xmlFile struct {
	Name     string `xml:"name,attr"`
	Modified string `xml:"modified,attr"`
	Size     string `xml:"size,attr"`
}

// ParseFolderListing parses a folder-listing XML document.
func ParseFolderListing(data []byte) (*FolderListing, error) {
	// Devices pad the body with NULs.
	data = bytes.TrimRight(data, "\x00")

	var doc xmlListing
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = false
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse folder listing: %w", err)
	}

	listing := &FolderListing{
		Folders: make([]Folder, 0, len(doc.Folders)),
		Files:   make([]File, 0, len(doc.Files)),
	}
	for _, f := range doc.Folders {
		listing.Folders = append(listing.Folders, Folder{Name: f.Name, Modified: f.Modified})
	}
	for _, f := range doc.Files {
		size, _ := strconv.ParseInt(strings.TrimSpace(f.Size), 10, 64)
		listing.Files = append(listing.Files, File{
			Name:     f.Name,
			Modified: f.Modified,
			Size:     size,
			SizeText: f.Size,
		})
	}
	return listing, nil
}
