// Package scheme declares the argument scheme of the Grid Manager input: the
// arguments a host must supply, their data types and which of them are
// required when an input is created. The scheme renders to the XML document
// modular-input hosts read on introspection.
package scheme

import (
	"encoding/xml"
	"io"
	"sort"
)

// DataType is the declared type of an argument
type DataType string

const (
	DataTypeString  DataType = "string"
	DataTypeBoolean DataType = "boolean"
	DataTypeNumber  DataType = "number"
)

// Argument describes one input argument
type Argument struct {
	Name             string
	Title            string
	Description      string
	DataType         DataType
	RequiredOnCreate bool
	RequiredOnEdit   bool
}

// Scheme describes an input kind
type Scheme struct {
	Title                 string
	Description           string
	UseExternalValidation bool
	UseSingleInstance     bool
	StreamingModeXML      bool
	Arguments             []Argument
}

// GridManager returns the scheme of the infoblox_gridmanager input kind
func GridManager() *Scheme {
	return &Scheme{
		Title:                 "Infoblox Grid Manager",
		Description:           "Batch input of IP information from Infoblox Grid Manager",
		UseExternalValidation: false,
		UseSingleInstance:     false,
		StreamingModeXML:      true,
		Arguments: []Argument{
			{Name: "username", Title: "Username", DataType: DataTypeString, RequiredOnCreate: true},
			{Name: "password", Title: "Password", DataType: DataTypeString, RequiredOnCreate: true},
			{Name: "domain", Title: "Domain", DataType: DataTypeString, RequiredOnCreate: true},
			{Name: "usessl", Title: "Use SSL", DataType: DataTypeBoolean},
			{Name: "verifyssl", Title: "Verify SSL", DataType: DataTypeBoolean},
			{Name: "version", Title: "API Version", DataType: DataTypeString},
			{Name: "limit", Title: "API Limit", DataType: DataTypeString},
			{Name: "fields", Title: "Return Fields", DataType: DataTypeString},
		},
	}
}

// Argument returns the named argument
func (s *Scheme) Argument(name string) (Argument, bool) {
	for _, arg := range s.Arguments {
		if arg.Name == name {
			return arg, true
		}
	}
	return Argument{}, false
}

// CheckRequired returns the names of required-on-create arguments that are
// missing or empty in args, sorted.
func (s *Scheme) CheckRequired(args map[string]string) []string {
	var missing []string
	for _, arg := range s.Arguments {
		if !arg.RequiredOnCreate {
			continue
		}
		if v, ok := args[arg.Name]; !ok || v == "" {
			missing = append(missing, arg.Name)
		}
	}
	sort.Strings(missing)
	return missing
}

type xmlScheme struct {
	XMLName               xml.Name `xml:"scheme"`
	Title                 string   `xml:"title"`
	Description           string   `xml:"description,omitempty"`
	UseExternalValidation bool     `xml:"use_external_validation"`
	UseSingleInstance     bool     `xml:"use_single_instance"`
	StreamingMode         string   `xml:"streaming_mode"`
	Args                  []xmlArg `xml:"endpoint>args>arg"`
}

type xmlArg struct {
	Name             string `xml:"name,attr"`
	Title            string `xml:"title,omitempty"`
	Description      string `xml:"description,omitempty"`
	DataType         string `xml:"data_type"`
	RequiredOnEdit   bool   `xml:"required_on_edit"`
	RequiredOnCreate bool   `xml:"required_on_create"`
}

// WriteXML renders the scheme as an introspection document
func (s *Scheme) WriteXML(w io.Writer) error {
	doc := xmlScheme{
		Title:                 s.Title,
		Description:           s.Description,
		UseExternalValidation: s.UseExternalValidation,
		UseSingleInstance:     s.UseSingleInstance,
		StreamingMode:         "simple",
		Args:                  make([]xmlArg, 0, len(s.Arguments)),
	}
	if s.StreamingModeXML {
		doc.StreamingMode = "xml"
	}
	for _, arg := range s.Arguments {
		doc.Args = append(doc.Args, xmlArg{
			Name:             arg.Name,
			Title:            arg.Title,
			Description:      arg.Description,
			DataType:         string(arg.DataType),
			RequiredOnEdit:   arg.RequiredOnEdit,
			RequiredOnCreate: arg.RequiredOnCreate,
		})
	}

	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Flush()
}
