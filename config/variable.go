package config

import "fmt"

// Variable declares a value resolvable as vars.<name>
type Variable struct {
	Name        string `hcl:"name,label"`
	Description string `hcl:"description,optional"`
	Default     string `hcl:"default,optional"`
	Secret      bool   `hcl:"secret,optional"`
}

func (v *Variable) Validate() error {
	if v.Secret && v.Default != "" {
		return fmt.Errorf("secret variable '%s' cannot have a default value set in config", v.Name)
	}
	return nil
}
