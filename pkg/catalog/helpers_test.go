package catalog_test

import "os"

func writeFile(path string, data []byte) error {
	return os.WriteFile(path, data, 0644)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
