package auth

// User is an authenticated identity as the rest of the app sees it.
// Values compare with ==. A change of verification status is a new User.
type User struct {
	// Email is empty when the provider holds no address for the account.
	Email           string
	IsEmailVerified bool
}
