package auth_test

import (
	"time"

	"github.com/golang-jwt/jwt/v4"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"warehouse.dev/monitor/internal/auth"
	"warehouse.dev/monitor/internal/store"
)

var _ = Describe("Issuer", func() {
	var (
		issuer *auth.Issuer
		user   *store.User
	)

	BeforeEach(func() {
		var err error
		issuer, err = auth.NewIssuer("test-secret", time.Hour)
		Expect(err).NotTo(HaveOccurred())
		user = &store.User{ID: 42, Name: "Dana", Role: store.RoleManager}
	})

	It("rejects an empty secret", func() {
		_, err := auth.NewIssuer("", time.Hour)
		Expect(err).To(MatchError("jwt secret cannot be empty"))
	})

	It("round-trips the user identity", func() {
		token, err := issuer.Issue(user)
		Expect(err).NotTo(HaveOccurred())

		claims, err := issuer.Verify(token)
		Expect(err).NotTo(HaveOccurred())
		Expect(claims.Name).To(Equal("Dana"))
		Expect(claims.Role).To(Equal(store.RoleManager))
		Expect(claims.UserID()).To(Equal(uint(42)))
	})

	It("rejects tokens signed with another secret", func() {
		other, err := auth.NewIssuer("other-secret", time.Hour)
		Expect(err).NotTo(HaveOccurred())
		token, err := other.Issue(user)
		Expect(err).NotTo(HaveOccurred())

		_, err = issuer.Verify(token)
		Expect(err).To(MatchError(auth.ErrUnauthorized))
	})

	It("rejects expired tokens", func() {
		claims := auth.Claims{
			Name: "Dana",
			Role: store.RoleAdmin,
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "42",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			},
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
		Expect(err).NotTo(HaveOccurred())

		_, err = issuer.Verify(token)
		Expect(err).To(MatchError(auth.ErrUnauthorized))
	})

	It("rejects tokens carrying an unknown role", func() {
		claims := auth.Claims{Name: "x", Role: "Guest", RegisteredClaims: jwt.RegisteredClaims{Subject: "1"}}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
		Expect(err).NotTo(HaveOccurred())

		_, err = issuer.Verify(token)
		Expect(err).To(MatchError(auth.ErrUnauthorized))
	})

	It("rejects garbage", func() {
		_, err := issuer.Verify("not-a-token")
		Expect(err).To(MatchError(auth.ErrUnauthorized))
	})
})

var _ = Describe("CheckInternalKey", func() {
	It("matches equal keys only", func() {
		Expect(auth.CheckInternalKey("abc", "abc")).To(BeTrue())
		Expect(auth.CheckInternalKey("abd", "abc")).To(BeFalse())
		Expect(auth.CheckInternalKey("", "abc")).To(BeFalse())
	})

	It("rejects everything when no key is configured", func() {
		Expect(auth.CheckInternalKey("", "")).To(BeFalse())
	})
})
