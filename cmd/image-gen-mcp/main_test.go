package main

import (
	"testing"

	"github.com/ironsheep/image-gen-mcp/internal/config"
)

func TestNewCollector(t *testing.T) {
	if newCollector(config.TransportStdio) != nil {
		t.Error("stdio mode has nowhere to serve metrics and should not collect them")
	}
	if newCollector(config.TransportHTTP) == nil {
		t.Error("http mode should collect metrics")
	}
}
