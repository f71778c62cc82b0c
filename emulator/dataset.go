package emulator

import (
	_ "embed"
	"fmt"
	"sync"

	"github.com/arloliu/go-oxitop/bottle"
	"github.com/arloliu/go-oxitop/internal/util"
)

//go:embed fixtures.yaml
var defaultFixture []byte

// Dataset is the immutable set of bottles an emulated device stores.
// It is safe for concurrent use.
type Dataset struct {
	bottles []*bottle.Bottle
	index   map[string]*bottle.Bottle
}

// NewDataset validates bottles and takes a deep copy of them. Serials must
// be unique.
func NewDataset(bottles []*bottle.Bottle) (*Dataset, error) {
	ds := &Dataset{
		bottles: make([]*bottle.Bottle, 0, len(bottles)),
		index:   make(map[string]*bottle.Bottle, len(bottles)),
	}

	for _, b := range bottles {
		if err := b.Validate(); err != nil {
			return nil, err
		}
		if _, dup := ds.index[b.Serial]; dup {
			return nil, fmt.Errorf("%w: duplicate bottle serial %s", bottle.ErrMalformedRecord, b.Serial)
		}

		clone := b.Clone()
		ds.bottles = append(ds.bottles, clone)
		ds.index[clone.Serial] = clone
	}

	return ds, nil
}

var loadDefault = sync.OnceValues(func() (*Dataset, error) {
	def, err := ParseDefinition(defaultFixture, FormatYAML)
	if err != nil {
		return nil, err
	}

	return def.Dataset()
})

// DefaultDataset returns the built-in three bottle fixture: 110222-06,
// 121119-03 and 120323-01.
func DefaultDataset() *Dataset {
	ds, err := loadDefault()
	if err != nil {
		panic(fmt.Sprintf("emulator: invalid built-in fixture: %v", err))
	}

	return ds
}

// Len returns the number of bottles.
func (ds *Dataset) Len() int {
	return len(ds.bottles)
}

// Serials returns the bottle serials in device list order.
func (ds *Dataset) Serials() []string {
	serials := make([]string, len(ds.bottles))
	for i, b := range ds.bottles {
		serials[i] = b.Serial
	}

	return serials
}

// Bottles returns copies of all bottles in device list order.
func (ds *Dataset) Bottles() []*bottle.Bottle {
	return util.CloneFunc(ds.bottles, (*bottle.Bottle).Clone)
}

// Bottle returns a copy of the bottle with the given serial. The dash of
// the serial is optional.
func (ds *Dataset) Bottle(serial string) (*bottle.Bottle, bool) {
	b := ds.lookup(serial)
	if b == nil {
		return nil, false
	}

	return b.Clone(), true
}

// Definition describes the dataset.
func (ds *Dataset) Definition() *Definition {
	return DefinitionOf(ds.bottles)
}

// lookup returns the shared bottle; callers must not modify it.
func (ds *Dataset) lookup(serial string) *bottle.Bottle {
	canonical, err := bottle.ParseWireSerial(serial)
	if err != nil {
		return nil
	}

	return ds.index[canonical]
}
