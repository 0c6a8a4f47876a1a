package rpc

import (
	"context"
	"encoding/json"

	"deficore/crypto"
	"deficore/services/eventlog"
)

type advanceHeightParams struct {
	// Height is the target height; zero advances by one.
	Height uint64 `json:"height"`
}

func (s *Server) registerHost() {
	s.register("protocol_height", method{call: s.protocolHeight})
	s.register("protocol_advanceHeight", method{dev: true, call: s.protocolAdvanceHeight})
	s.register("events_query", method{call: s.eventsQuery})
}

func (s *Server) protocolHeight(_ context.Context, _ crypto.Address, _ json.RawMessage) (interface{}, error) {
	return &HeightResult{Height: s.protocol.Height(), Root: s.protocol.Root().Hex()}, nil
}

func (s *Server) protocolAdvanceHeight(_ context.Context, _ crypto.Address, raw json.RawMessage) (interface{}, error) {
	var p advanceHeightParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.Height == 0 {
		if _, err := s.protocol.Tick(); err != nil {
			return nil, err
		}
	} else if err := s.protocol.AdvanceHeight(p.Height); err != nil {
		return nil, err
	}
	return &HeightResult{Height: s.protocol.Height(), Root: s.protocol.Root().Hex()}, nil
}

func (s *Server) eventsQuery(ctx context.Context, _ crypto.Address, raw json.RawMessage) (interface{}, error) {
	if s.events == nil {
		return nil, errEventLogOff
	}
	var f eventlog.Filter
	if err := decodeParams(raw, &f); err != nil {
		return nil, err
	}
	if f.FromHeight > 0 && f.ToHeight > 0 && f.FromHeight > f.ToHeight {
		return nil, invalidParams("fromHeight exceeds toHeight")
	}
	records, err := s.events.Query(ctx, f)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []eventlog.Record{}
	}
	return records, nil
}
