package actors

import (
	"context"

	"github.com/yousuf/tracebyte/internal/location"
	"github.com/yousuf/tracebyte/internal/protocol"
)

// DeviceActor describes the debuggee host
type DeviceActor struct {
	protocol.BaseActor

	host Host
}

func newDeviceActor(env *environment) *DeviceActor {
	return &DeviceActor{BaseActor: protocol.NewBaseActor(env.conn, "device"), host: env.host}
}

// Methods implements protocol.MethodProvider
func (d *DeviceActor) Methods() protocol.MethodTable {
	return protocol.MethodTable{
		"getDescription": func(ctx context.Context, req protocol.Packet) (protocol.Packet, error) {
			info := d.host.Device()
			return protocol.Packet{"value": protocol.Packet{
				"appType":  info.AppType,
				"name":     info.Name,
				"version":  info.Version,
				"platform": info.Platform,
			}}, nil
		},
	}
}

// SourceMapActor maps generated positions and stack traces to original
// sources for clients that have no source maps of their own.
type SourceMapActor struct {
	protocol.BaseActor

	translator *location.Translator
}

func newSourceMapActor(env *environment) *SourceMapActor {
	return &SourceMapActor{BaseActor: protocol.NewBaseActor(env.conn, "sourceMap"), translator: env.translator}
}

// Methods implements protocol.MethodProvider
func (s *SourceMapActor) Methods() protocol.MethodTable {
	return protocol.MethodTable{
		"getOriginalLocation": func(ctx context.Context, req protocol.Packet) (protocol.Packet, error) {
			g, err := generatedFromPacket(req)
			if err != nil {
				return nil, err
			}
			o, ok := s.translator.Original(g)
			if !ok {
				return protocol.Packet{"location": nil}, nil
			}
			return protocol.Packet{"location": o.Record()}, nil
		},
		"mapStack": func(ctx context.Context, req protocol.Packet) (protocol.Packet, error) {
			stack, ok := req.String("stack")
			if !ok {
				return nil, protocol.Errorf(protocol.ErrMissingParameter.Name, "mapStack requires a 'stack' string")
			}
			return protocol.Packet{"stack": s.translator.MapStack(stack)}, nil
		},
	}
}

// generatedFromPacket reads {location: {url, line, column}} from a request
func generatedFromPacket(req protocol.Packet) (location.GeneratedLocation, error) {
	loc, ok := req.Object("location")
	if !ok {
		return location.GeneratedLocation{}, protocol.Errorf(protocol.ErrMissingParameter.Name, "missing 'location' object")
	}
	url, ok := loc.String("url")
	if !ok {
		return location.GeneratedLocation{}, protocol.Errorf(protocol.ErrBadParameterType.Name, "location.url must be a string")
	}
	line, ok := loc.Int("line")
	if !ok || line < 1 {
		return location.GeneratedLocation{}, protocol.Errorf(protocol.ErrBadParameterType.Name, "location.line must be a positive integer")
	}
	g := location.NewGenerated(location.SourceRef{Href: url}, line)
	if _, present := loc["column"]; present {
		column, ok := loc.Int("column")
		if !ok || column < 0 {
			return location.GeneratedLocation{}, protocol.Errorf(protocol.ErrBadParameterType.Name, "location.column must be a non-negative integer")
		}
		g = g.WithColumn(column)
	}
	return g, nil
}
