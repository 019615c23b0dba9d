package config

import (
	"os"
	"testing"

	"github.com/golovatskygroup/billy-mcp/internal/testutil"
)

func TestMain(m *testing.M) {
	_ = testutil.LoadDotEnv()
	os.Exit(m.Run())
}
