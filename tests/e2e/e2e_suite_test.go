package e2e

import (
	"net/http"
	"os"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

const defaultBaseURL = "http://localhost:18080"

var baseURL string

func TestE2E(t *testing.T) {
	if os.Getenv("E2E_BASE_URL") == "" {
		t.Skip("E2E_BASE_URL not set; skipping end-to-end suite")
	}
	RegisterFailHandler(Fail)
	RunSpecs(t, "Gatehouse E2E Suite")
}

var _ = BeforeSuite(func() {
	baseURL = os.Getenv("E2E_BASE_URL")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	// Wait for readyz
	Eventually(func() int {
		resp, err := http.Get(baseURL + "/readyz")
		if err != nil {
			return 0
		}
		resp.Body.Close()
		return resp.StatusCode
	}).WithTimeout(60 * time.Second).WithPolling(2 * time.Second).Should(Equal(http.StatusOK))
})
