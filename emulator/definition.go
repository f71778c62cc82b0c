package emulator

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
	"gopkg.in/yaml.v3"

	"github.com/arloliu/go-oxitop/bottle"
)

// ErrUnknownFormat indicates a definition file whose format cannot be
// told from its extension.
var ErrUnknownFormat = errors.New("unknown definition format")

// DefinitionTimeLayout is the wall-clock layout of definition timestamps.
const DefinitionTimeLayout = "2006-01-02T15:04:05"

// Format is a bottle definition encoding.
type Format int

const (
	FormatYAML Format = iota
	FormatCBOR
	FormatXML
)

func (f Format) String() string {
	switch f {
	case FormatYAML:
		return "yaml"
	case FormatCBOR:
		return "cbor"
	case FormatXML:
		return "xml"
	default:
		return "unknown"
	}
}

// FormatOf picks the format by file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".cbor":
		return FormatCBOR, nil
	case ".xml":
		return FormatXML, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
}

// Definition describes the bottles stored on an emulated device.
type Definition struct {
	Bottles []BottleDefinition `yaml:"bottles" cbor:"bottles"`
}

// BottleDefinition describes one bottle. Start and Finish use
// DefinitionTimeLayout; readings are raw values from the start of the run.
type BottleDefinition struct {
	Serial       string           `yaml:"serial"        cbor:"serial"`
	ID           int              `yaml:"id"            cbor:"id"`
	Start        string           `yaml:"start"         cbor:"start"`
	Finish       string           `yaml:"finish"        cbor:"finish"`
	Measurements int              `yaml:"measurements"  cbor:"measurements"`
	Mode         string           `yaml:"mode"          cbor:"mode"`
	BottleVolume float64          `yaml:"bottle_volume" cbor:"bottle_volume"`
	SampleVolume float64          `yaml:"sample_volume" cbor:"sample_volume"`
	Dilution     int              `yaml:"dilution"      cbor:"dilution"`
	Heads        []HeadDefinition `yaml:"heads"         cbor:"heads"`
}

// HeadDefinition describes one head of a bottle.
type HeadDefinition struct {
	Serial        string `yaml:"serial"                   cbor:"serial"`
	PressureLimit int    `yaml:"pressure_limit,omitempty" cbor:"pressure_limit,omitempty"`
	Readings      []int  `yaml:"readings,flow"            cbor:"readings"`
}

// LoadDefinition reads a definition file, choosing the decoder by extension.
func LoadDefinition(path string) (*Definition, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read definition: %w", err)
	}

	return ParseDefinition(data, format)
}

// ParseDefinition decodes a definition document.
func ParseDefinition(data []byte, format Format) (*Definition, error) {
	var def Definition

	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &def); err != nil {
			return nil, fmt.Errorf("parse yaml definition: %w", err)
		}
	case FormatCBOR:
		if err := cbor.Unmarshal(data, &def); err != nil {
			return nil, fmt.Errorf("parse cbor definition: %w", err)
		}
	case FormatXML:
		bottles, err := parseXML(data)
		if err != nil {
			return nil, fmt.Errorf("parse xml definition: %w", err)
		}
		def.Bottles = bottles
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownFormat, format)
	}

	return &def, nil
}

// Marshal encodes the definition.
func (d *Definition) Marshal(format Format) ([]byte, error) {
	switch format {
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(d); err != nil {
			return nil, err
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}

		return buf.Bytes(), nil
	case FormatCBOR:
		return cbor.Marshal(d)
	case FormatXML:
		return marshalXML(d.Bottles)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownFormat, format)
	}
}

// Dataset validates the definition and builds a Dataset from it.
func (d *Definition) Dataset() (*Dataset, error) {
	bottles := make([]*bottle.Bottle, 0, len(d.Bottles))
	for i := range d.Bottles {
		b, err := d.Bottles[i].toBottle()
		if err != nil {
			return nil, fmt.Errorf("definition bottle %d: %w", i+1, err)
		}
		bottles = append(bottles, b)
	}

	return NewDataset(bottles)
}

// DefinitionOf describes bottles as a definition.
func DefinitionOf(bottles []*bottle.Bottle) *Definition {
	def := &Definition{Bottles: make([]BottleDefinition, 0, len(bottles))}
	for _, b := range bottles {
		bd := BottleDefinition{
			Serial:       b.Serial,
			ID:           b.ID,
			Start:        b.Start.Format(DefinitionTimeLayout),
			Finish:       b.Finish.Format(DefinitionTimeLayout),
			Measurements: b.Measurements,
			Mode:         strings.ToLower(b.Mode.Kind.String()),
			BottleVolume: b.BottleVolume,
			SampleVolume: b.SampleVolume,
			Dilution:     b.Dilution,
			Heads:        make([]HeadDefinition, 0, len(b.Heads)),
		}
		for _, h := range b.Heads {
			values := make([]int, len(h.Readings))
			for i, r := range h.Readings {
				values[i] = r.Value
			}
			bd.Heads = append(bd.Heads, HeadDefinition{
				Serial:        h.Serial,
				PressureLimit: h.PressureLimit,
				Readings:      values,
			})
		}
		def.Bottles = append(def.Bottles, bd)
	}

	return def
}

func (bd *BottleDefinition) toBottle() (*bottle.Bottle, error) {
	start, err := time.ParseInLocation(DefinitionTimeLayout, bd.Start, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("%w: bottle %s start %q", bottle.ErrMalformedRecord, bd.Serial, bd.Start)
	}
	finish, err := time.ParseInLocation(DefinitionTimeLayout, bd.Finish, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("%w: bottle %s finish %q", bottle.ErrMalformedRecord, bd.Serial, bd.Finish)
	}
	kind, err := bottle.ParseModeKind(bd.Mode)
	if err != nil {
		return nil, err
	}

	b := &bottle.Bottle{
		Serial:       bd.Serial,
		ID:           bd.ID,
		Start:        start,
		Finish:       finish,
		Interval:     bottle.IntervalOf(start, finish, bd.Measurements),
		Mode:         bottle.NewMode(kind, start, finish),
		BottleVolume: bd.BottleVolume,
		SampleVolume: bd.SampleVolume,
		Dilution:     bd.Dilution,
		Measurements: bd.Measurements,
		Heads:        make([]*bottle.Head, 0, len(bd.Heads)),
	}
	for _, hd := range bd.Heads {
		b.Heads = append(b.Heads, &bottle.Head{
			Serial:        hd.Serial,
			PressureLimit: hd.PressureLimit,
			Readings:      b.NewReadings(hd.Readings),
		})
	}

	return b, nil
}

// The XML layout is the bottle export format of the desktop tools: one
// <bottle> element, or several wrapped in <bottles>.

type xmlDocument struct {
	XMLName xml.Name    `xml:"bottles"`
	Bottles []xmlBottle `xml:"bottle"`
}

type xmlBottle struct {
	XMLName      xml.Name  `xml:"bottle"`
	Serial       string    `xml:"serial,attr"`
	ID           int       `xml:"id,attr"`
	Start        string    `xml:"start,attr"`
	Finish       string    `xml:"finish,attr"`
	Measurements int       `xml:"measurements,attr"`
	Mode         string    `xml:"mode,attr"`
	BottleVolume float64   `xml:"bottlevolume,attr"`
	SampleVolume float64   `xml:"samplevolume,attr"`
	Dilution     int       `xml:"dilution,attr"`
	Heads        []xmlHead `xml:"head"`
}

type xmlHead struct {
	Serial        string       `xml:"serial,attr"`
	PressureLimit int          `xml:"pressurelimit,attr,omitempty"`
	Readings      []xmlReading `xml:"autoreadings>reading"`
}

type xmlReading struct {
	Value int `xml:"value,attr"`
}

func parseXML(data []byte) ([]BottleDefinition, error) {
	var root struct {
		XMLName xml.Name
	}
	if err := xml.Unmarshal(data, &root); err != nil {
		return nil, err
	}

	var elems []xmlBottle
	switch root.XMLName.Local {
	case "bottles":
		var doc xmlDocument
		if err := xml.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
		elems = doc.Bottles
	case "bottle":
		var elem xmlBottle
		if err := xml.Unmarshal(data, &elem); err != nil {
			return nil, err
		}
		elems = []xmlBottle{elem}
	default:
		return nil, fmt.Errorf("unexpected root element <%s>", root.XMLName.Local)
	}

	bottles := make([]BottleDefinition, 0, len(elems))
	for _, e := range elems {
		bd := BottleDefinition{
			Serial:       e.Serial,
			ID:           e.ID,
			Start:        e.Start,
			Finish:       e.Finish,
			Measurements: e.Measurements,
			Mode:         e.Mode,
			BottleVolume: e.BottleVolume,
			SampleVolume: e.SampleVolume,
			Dilution:     e.Dilution,
			Heads:        make([]HeadDefinition, 0, len(e.Heads)),
		}
		for _, h := range e.Heads {
			values := make([]int, len(h.Readings))
			for i, r := range h.Readings {
				values[i] = r.Value
			}
			bd.Heads = append(bd.Heads, HeadDefinition{Serial: h.Serial, PressureLimit: h.PressureLimit, Readings: values})
		}
		bottles = append(bottles, bd)
	}

	return bottles, nil
}

func marshalXML(bottles []BottleDefinition) ([]byte, error) {
	doc := xmlDocument{Bottles: make([]xmlBottle, 0, len(bottles))}
	for _, bd := range bottles {
		e := xmlBottle{
			Serial:       bd.Serial,
			ID:           bd.ID,
			Start:        bd.Start,
			Finish:       bd.Finish,
			Measurements: bd.Measurements,
			Mode:         bd.Mode,
			BottleVolume: bd.BottleVolume,
			SampleVolume: bd.SampleVolume,
			Dilution:     bd.Dilution,
		}
		for _, hd := range bd.Heads {
			h := xmlHead{Serial: hd.Serial, PressureLimit: hd.PressureLimit}
			for _, v := range hd.Readings {
				h.Readings = append(h.Readings, xmlReading{Value: v})
			}
			e.Heads = append(e.Heads, h)
		}
		doc.Bottles = append(doc.Bottles, e)
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}

	return append([]byte(xml.Header), out...), nil
}
