package client

import (
	"os"
	"testing"

	"github.com/smartpigdefi/smartpig/logger"
)

func TestMain(m *testing.M) {
	logger.Init()
	os.Exit(m.Run())
}
