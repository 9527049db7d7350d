package actors

import (
	"context"

	"github.com/yousuf/tracebyte/internal/location"
	"github.com/yousuf/tracebyte/internal/protocol"
)

// SourceActor is one script of a thread. It satisfies location.SourceActor,
// so locations built by the translator can point at it.
type SourceActor struct {
	protocol.BaseActor

	info SourceInfo
}

var _ location.SourceActor = (*SourceActor)(nil)

func newSourceActor(env *environment, info SourceInfo) *SourceActor {
	return &SourceActor{
		BaseActor: protocol.NewBaseActor(env.conn, "source"),
		info:      info,
	}
}

// URL implements location.SourceActor
func (s *SourceActor) URL() string { return s.info.URL }

// Form implements protocol.FormProvider
func (s *SourceActor) Form() protocol.Packet {
	form := protocol.Packet{
		"actor": s.ActorID(),
		"url":   s.info.URL,
	}
	if s.info.SourceMapURL != "" {
		form["sourceMapURL"] = s.info.SourceMapURL
	}
	return form
}

// Methods implements protocol.MethodProvider
func (s *SourceActor) Methods() protocol.MethodTable {
	return protocol.MethodTable{
		"source": func(ctx context.Context, req protocol.Packet) (protocol.Packet, error) {
			return protocol.Packet{
				"source":      s.info.Text,
				"contentType": "text/javascript",
			}, nil
		},
	}
}
