package model

// DirectoryPair is one source tree and the target it is mirrored to.
type DirectoryPair struct {
	Source string `mapstructure:"source" json:"source"`
	Target string `mapstructure:"target" json:"target"`
}
