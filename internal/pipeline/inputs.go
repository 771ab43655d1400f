package pipeline

import (
	"context"
	"errors"
	"io"
	"regexp"

	"devicelink/internal/config"
	"devicelink/internal/device"
	"devicelink/internal/errs"
	"devicelink/internal/relation"
)

// Inputs are the opened event and registry relations with their layouts.
type Inputs struct {
	Events           relation.Source
	Registry         relation.Source
	EventLayout      *device.EventLayout
	RegistryLayout   *device.RegistryLayout
	SecondaryPattern *regexp.Regexp
}

// OpenInputs opens both inputs and resolves their column layouts. Missing
// required columns fail here, before any output is written.
func OpenInputs(ctx context.Context, cfg *config.Config) (*Inputs, error) {
	pattern, err := regexp.Compile(cfg.Matching.SecondaryColumnPattern)
	if err != nil {
		return nil, errs.Wrap(errs.ErrConfiguration, stagePrepare, "compile secondary column pattern", "", err)
	}
	in := &Inputs{SecondaryPattern: pattern}
	if in.Events, err = relation.Open(cfg.Inputs.Events); err != nil {
		return nil, err
	}
	if in.Registry, err = relation.Open(cfg.Inputs.Registry); err != nil {
		_ = in.Close()
		return nil, err
	}

	eventHeader, err := in.Events.Columns(ctx)
	if err != nil {
		_ = in.Close()
		return nil, errs.Wrap(errs.ErrIO, stagePrepare, "read events header", in.Events.Name(), err)
	}
	if in.EventLayout, err = device.NewEventLayout(eventHeader, EventColumns(cfg), cfg.Pipeline.EventDateFields); err != nil {
		_ = in.Close()
		return nil, err
	}
	registryHeader, err := in.Registry.Columns(ctx)
	if err != nil {
		_ = in.Close()
		return nil, errs.Wrap(errs.ErrIO, stagePrepare, "read registry header", in.Registry.Name(), err)
	}
	if in.RegistryLayout, err = device.NewRegistryLayout(registryHeader, RegistryColumns(cfg), cfg.Pipeline.RegistryDateFields, pattern); err != nil {
		_ = in.Close()
		return nil, err
	}
	return in, nil
}

// Close releases inputs that hold open handles.
func (in *Inputs) Close() error {
	if in == nil {
		return nil
	}
	var closeErrs []error
	for _, src := range []relation.Source{in.Events, in.Registry} {
		if c, ok := src.(io.Closer); ok {
			closeErrs = append(closeErrs, c.Close())
		}
	}
	return errors.Join(closeErrs...)
}

// EventColumns converts the configured event column names.
func EventColumns(cfg *config.Config) device.EventColumns {
	c := cfg.Columns.Events
	return device.EventColumns{
		Identifier:   c.Identifier,
		Public:       c.Public,
		Manufacturer: c.Manufacturer,
		Brand:        c.Brand,
		Catalog:      c.Catalog,
		Model:        c.Model,
	}
}

// RegistryColumns converts the configured registry column names.
func RegistryColumns(cfg *config.Config) device.RegistryColumns {
	c := cfg.Columns.Registry
	return device.RegistryColumns{
		Identifier:   c.Identifier,
		Manufacturer: c.Manufacturer,
		Brand:        c.Brand,
		Catalog:      c.Catalog,
		Model:        c.Model,
	}
}
