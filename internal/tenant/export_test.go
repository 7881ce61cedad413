package tenant

// SetPrefixSource replaces the random prefix generator.
func SetPrefixSource(k *Keys, f func() (string, error)) {
	k.newPrefix = f
}
