//go:build integration && !windows

package integration

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestTrayIntegration(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Tray Daemon Integration Suite")
}
