package bridge

import "os"

// defaultRemove implements the built-in remove behavior: delete the
// installed path, recursively for directories. Reports whether the path
// existed beforehand.
func defaultRemove(path string) (bool, error) {
	if path == "" {
		return false, nil
	}
	_, err := os.Lstat(path)
	existed := err == nil
	if err != nil && !os.IsNotExist(err) {
		return false, err
	}
	if err := os.RemoveAll(path); err != nil {
		return existed, err
	}
	return existed, nil
}
