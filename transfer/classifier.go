package transfer

// IsDirectory reports whether path can be navigated into. FTP has no stat
// for directories, so this is behavioral: a plain file and a directory the
// user may not enter both report false, and the two cannot be told apart.
//
// When nav can report its working directory (as *session.Session can), the
// previous directory is restored after a successful probe. If it cannot be
// read, nothing is probed and the error is returned.
func IsDirectory(nav Navigator, path string) (bool, error) {
	var prev string
	if pwd, ok := nav.(interface{ CurrentDir() (string, error) }); ok {
		wd, err := pwd.CurrentDir()
		if err != nil {
			return false, err
		}
		prev = wd
	}

	ok, err := nav.ChangeDir(path)
	if err != nil || !ok {
		return false, err
	}
	if prev != "" {
		if _, err := nav.ChangeDir(prev); err != nil {
			return true, err
		}
	}
	return true, nil
}
