package domain

// Identity is the acting user on whose behalf commands are signed.
type Identity struct {
	Name       string `yaml:"name"`
	AuthID     string `yaml:"authId"`
	PrivateKey string `yaml:"privateKey"`
}
