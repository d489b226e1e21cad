package storage

// Object is one stored file plus the headers a backend records with it
type Object struct {
	Name        string
	Data        []byte
	ContentType string
	Metadata    map[string]string
}

// StorageInterface defines the contract for storage operations
type StorageInterface interface {
	Store(obj Object) error
	Retrieve(filename string) ([]byte, error)
	List(prefix string) ([]string, error)
	Delete(filename string) error
}
