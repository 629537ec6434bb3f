package model

import (
	"errors"
	"fmt"
)

var errFormNameMissing = errors.New("model builder: form name is required")

func validateSource(src Source) error {
	if src.Name == "" {
		return errFormNameMissing
	}
	seen := make(map[string]bool, len(src.Specs))
	for _, spec := range src.Specs {
		if spec.Name == "" {
			return fmt.Errorf("model builder: form %s has an unnamed field", src.Name)
		}
		if seen[spec.Name] {
			return fmt.Errorf("model builder: form %s repeats field %s", src.Name, spec.Name)
		}
		seen[spec.Name] = true
	}
	return nil
}
