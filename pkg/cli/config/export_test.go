package config

// NewTemplatesForTest creates a Templates config for testing purposes
func NewTemplatesForTest(path string) *Templates {
	return &Templates{path: path}
}

// NewLoggerForTest creates a Logger config for testing purposes
func NewLoggerForTest(level, format string) *Logger {
	return &Logger{level: level, format: format}
}

// NewUploadForTest creates an Upload config for testing purposes
func NewUploadForTest(baseURL, token string, validateJWT bool) *Upload {
	return &Upload{baseURL: baseURL, token: token, validateJWT: validateJWT}
}

// NewRepositoryForTest creates a Repository config for testing purposes
func NewRepositoryForTest(backend, projectID string) *Repository {
	return &Repository{backend: backend, projectID: projectID}
}
