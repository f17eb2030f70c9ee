package iioxml

import "encoding/xml"

// Context represents the IIO context XML as returned by iiod's PRINT command.
// Field layout follows what libiio emits for both old (v0.2x) and new servers.
type Context struct {
	XMLName          xml.Name           `xml:"context" json:"-"`
	Name             string             `xml:"name,attr" json:"name"`
	VersionMajor     string             `xml:"version-major,attr,omitempty" json:"versionMajor,omitempty"`
	VersionMinor     string             `xml:"version-minor,attr,omitempty" json:"versionMinor,omitempty"`
	VersionGit       string             `xml:"version-git,attr,omitempty" json:"versionGit,omitempty"`
	Description      string             `xml:"description,attr,omitempty" json:"description,omitempty"`
	ContextAttribute []ContextAttribute `xml:"context-attribute" json:"contextAttributes,omitempty"`
	Device           []Device           `xml:"device" json:"devices"`

	index *Index
}

// ContextAttribute is a name/value pair attached to the whole context.
type ContextAttribute struct {
	Name  string `xml:"name,attr" json:"name"`
	Value string `xml:"value,attr" json:"value"`
}

// Device is one IIO device (iio:deviceN).
type Device struct {
	ID              string      `xml:"id,attr" json:"id"`
	Name            string      `xml:"name,attr,omitempty" json:"name,omitempty"`
	Label           string      `xml:"label,attr,omitempty" json:"label,omitempty"`
	Channel         []Channel   `xml:"channel" json:"channels,omitempty"`
	Attribute       []Attribute `xml:"attribute" json:"attributes,omitempty"`
	DebugAttribute  []Attribute `xml:"debug-attribute" json:"debugAttributes,omitempty"`
	BufferAttribute []Attribute `xml:"buffer-attribute" json:"bufferAttributes,omitempty"`
}

// Channel is one IIO channel. Type is "input" or "output".
type Channel struct {
	ID          string       `xml:"id,attr" json:"id"`
	Name        string       `xml:"name,attr,omitempty" json:"name,omitempty"`
	Type        string       `xml:"type,attr" json:"type"`
	ScanElement *ScanElement `xml:"scan-element" json:"scanElement,omitempty"`
	Attribute   []Attribute  `xml:"attribute" json:"attributes,omitempty"`
}

// Output reports whether the channel is an output channel.
func (c *Channel) Output() bool { return c.Type == "output" }

// Attribute is a device, channel, debug or buffer attribute. Filename is only
// set for channel attributes.
type Attribute struct {
	Name     string `xml:"name,attr" json:"name"`
	Filename string `xml:"filename,attr,omitempty" json:"filename,omitempty"`
	Value    string `xml:"value,attr,omitempty" json:"value,omitempty"`
}

// ScanElement describes how a buffered channel is laid out in a sample frame.
type ScanElement struct {
	Index  string `xml:"index,attr" json:"index"`
	Format string `xml:"format,attr" json:"format"`
	Scale  string `xml:"scale,attr,omitempty" json:"scale,omitempty"`
}
