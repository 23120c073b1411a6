//go:build !devauth

package auth

// DevIdentityProvider は通常ビルドでは常にnilを返す。
func DevIdentityProvider() IdentityProvider {
	return nil
}
