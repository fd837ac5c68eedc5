package e2e

import (
	"fmt"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Authentication", func() {
	var email string

	BeforeEach(func() {
		email = fmt.Sprintf("e2e-%d@example.com", time.Now().UnixNano())
	})

	Describe("registration and login", func() {
		It("registers a new account and returns a usable token", func() {
			tr, status, err := register(email, "hunter22!", "E2E User")
			Expect(err).NotTo(HaveOccurred())
			Expect(status).To(Equal(http.StatusCreated))
			Expect(tr.Token).NotTo(BeEmpty())
			Expect(tr.User.Email).To(Equal(email))
			Expect(tr.User.Role.Name).To(Equal("user"))

			resp, err := getWithToken("/api/auth/me", tr.Token)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var me struct {
				ID    string `json:"id"`
				Email string `json:"email"`
			}
			Expect(decodeInto(resp, &me)).To(Succeed())
			Expect(me.ID).To(Equal(tr.User.ID))
		})

		It("rejects a duplicate registration", func() {
			_, status, err := register(email, "hunter22!", "")
			Expect(err).NotTo(HaveOccurred())
			Expect(status).To(Equal(http.StatusCreated))

			_, status, err = register(email, "other-password", "")
			Expect(err).NotTo(HaveOccurred())
			Expect(status).To(Equal(http.StatusBadRequest))
		})

		It("logs in with the registered password only", func() {
			_, status, err := register(email, "hunter22!", "")
			Expect(err).NotTo(HaveOccurred())
			Expect(status).To(Equal(http.StatusCreated))

			tr, status, err := login(email, "hunter22!")
			Expect(err).NotTo(HaveOccurred())
			Expect(status).To(Equal(http.StatusOK))
			Expect(tr.Token).NotTo(BeEmpty())

			_, status, err = login(email, "wrong-password")
			Expect(err).NotTo(HaveOccurred())
			Expect(status).To(Equal(http.StatusUnauthorized))

			_, status, err = login("nobody-"+email, "hunter22!")
			Expect(err).NotTo(HaveOccurred())
			Expect(status).To(Equal(http.StatusUnauthorized))
		})
	})

	Describe("available auth methods", func() {
		It("always offers email sign-in", func() {
			resp, err := http.Get(baseURL + "/api/auth/available-auths")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var methods []string
			Expect(decodeInto(resp, &methods)).To(Succeed())
			Expect(methods).To(ContainElement("email"))
		})
	})

	Describe("protected routes", func() {
		It("rejects requests without a token", func() {
			resp, err := getWithToken("/api/auth/me", "")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		})

		It("keeps regular users out of admin routes", func() {
			tr, status, err := register(email, "hunter22!", "")
			Expect(err).NotTo(HaveOccurred())
			Expect(status).To(Equal(http.StatusCreated))

			resp, err := getWithToken("/api/admin/users", tr.Token)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusForbidden))
		})
	})
})
