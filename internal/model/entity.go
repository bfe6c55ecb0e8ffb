package model

import (
	"time"
)

// Entity is a snapshot of one monitored object at collection time
type Entity interface {
	Identity() string
}

// FileSystemObject describes a file or directory
type FileSystemObject struct {
	Path              string            `json:"path"`
	Size              int64             `json:"size"`
	IsDirectory       bool              `json:"is_directory"`
	IsExecutable      bool              `json:"is_executable"`
	IsLink            bool              `json:"is_link"`
	Target            string            `json:"target,omitempty"`
	ContentHash       string            `json:"content_hash,omitempty"`
	SignatureStatus   string            `json:"signature_status,omitempty"`
	Owner             string            `json:"owner,omitempty"`
	Group             string            `json:"group,omitempty"`
	SetUID            bool              `json:"set_uid"`
	SetGID            bool              `json:"set_gid"`
	PermissionsString string            `json:"permissions_string,omitempty"`
	Permissions       map[string]string `json:"permissions,omitempty"`
	Characteristics   []string          `json:"characteristics,omitempty"`
}

func (o *FileSystemObject) Identity() string { return o.Path }

// CertificateObject describes a certificate found in a certificate store
type CertificateObject struct {
	StoreLocation         string    `json:"store_location"`
	StoreName             string    `json:"store_name"`
	CertificateHashString string    `json:"certificate_hash_string"`
	Subject               string    `json:"subject"`
	Issuer                string    `json:"issuer,omitempty"`
	SerialNumber          string    `json:"serial_number,omitempty"`
	NotBefore             time.Time `json:"not_before"`
	NotAfter              time.Time `json:"not_after"`
	Pkcs7                 string    `json:"pkcs7,omitempty"`
}

func (o *CertificateObject) Identity() string {
	return o.StoreLocation + `\` + o.StoreName + `\` + o.CertificateHashString
}

// OpenPortObject describes a listening socket
type OpenPortObject struct {
	Address     string `json:"address"`
	Family      string `json:"family"`
	Type        string `json:"type"`
	Port        int    `json:"port"`
	ProcessName string `json:"process_name,omitempty"`
}

func (o *OpenPortObject) Identity() string {
	return o.Type + ":" + o.Address + ":" + itoa(o.Port)
}

// RegistryObject describes a registry key with its values and subkeys
type RegistryObject struct {
	Key               string            `json:"key"`
	View              string            `json:"view,omitempty"`
	Subkeys           []string          `json:"subkeys,omitempty"`
	Values            map[string]string `json:"values,omitempty"`
	PermissionsString string            `json:"permissions_string,omitempty"`
	Permissions       map[string]string `json:"permissions,omitempty"`
}

func (o *RegistryObject) Identity() string { return o.Key }

// ServiceObject describes an installed service or daemon
type ServiceObject struct {
	ServiceName  string   `json:"service_name"`
	DisplayName  string   `json:"display_name,omitempty"`
	Description  string   `json:"description,omitempty"`
	PathName     string   `json:"path_name,omitempty"`
	StartType    string   `json:"start_type,omitempty"`
	State        string   `json:"state,omitempty"`
	StartName    string   `json:"start_name,omitempty"`
	AcceptStop   bool     `json:"accept_stop"`
	ProcessID    int      `json:"process_id"`
	ServiceType  string   `json:"service_type,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
	InstallDate  string   `json:"install_date,omitempty"`
}

func (o *ServiceObject) Identity() string { return o.ServiceName }

// UserAccountObject describes a local user or group
type UserAccountObject struct {
	Name               string            `json:"name"`
	AccountType        string            `json:"account_type,omitempty"`
	Caption            string            `json:"caption,omitempty"`
	Description        string            `json:"description,omitempty"`
	Disabled           bool              `json:"disabled"`
	Domain             string            `json:"domain,omitempty"`
	FullName           string            `json:"full_name,omitempty"`
	HomeDirectory      string            `json:"home_directory,omitempty"`
	Shell              string            `json:"shell,omitempty"`
	UID                string            `json:"uid,omitempty"`
	GID                string            `json:"gid,omitempty"`
	SID                string            `json:"sid,omitempty"`
	LocalAccount       bool              `json:"local_account"`
	Lockout            bool              `json:"lockout"`
	PasswordChangeable bool              `json:"password_changeable"`
	PasswordExpires    bool              `json:"password_expires"`
	PasswordRequired   bool              `json:"password_required"`
	Privileged         bool              `json:"privileged"`
	Groups             []string          `json:"groups,omitempty"`
	Properties         map[string]string `json:"properties,omitempty"`
}

func (o *UserAccountObject) Identity() string {
	if o.Domain != "" {
		return o.Domain + `\` + o.Name
	}
	return o.Name
}

// FirewallObject describes a firewall rule
type FirewallObject struct {
	Name            string   `json:"name"`
	FriendlyName    string   `json:"friendly_name,omitempty"`
	Action          string   `json:"action,omitempty"`
	ApplicationName string   `json:"application_name,omitempty"`
	Description     string   `json:"description,omitempty"`
	Direction       string   `json:"direction,omitempty"`
	EdgeTraversal   bool     `json:"edge_traversal"`
	Grouping        string   `json:"grouping,omitempty"`
	IsEnable        bool     `json:"is_enable"`
	Profiles        string   `json:"profiles,omitempty"`
	Protocol        string   `json:"protocol,omitempty"`
	Scope           string   `json:"scope,omitempty"`
	ServiceName     string   `json:"service_name,omitempty"`
	LocalAddresses  []string `json:"local_addresses,omitempty"`
	LocalPorts      []string `json:"local_ports,omitempty"`
	RemoteAddresses []string `json:"remote_addresses,omitempty"`
	RemotePorts     []string `json:"remote_ports,omitempty"`
}

func (o *FirewallObject) Identity() string { return o.Name }

// NewEntity returns an empty snapshot of the type used for category c, or nil
// when the category carries no snapshot type. GROUP shares the user account
// type; COM and LOG share the firewall type.
func NewEntity(c Category) Entity {
	switch c {
	case CategoryFile:
		return &FileSystemObject{}
	case CategoryCertificate:
		return &CertificateObject{}
	case CategoryPort:
		return &OpenPortObject{}
	case CategoryRegistry:
		return &RegistryObject{}
	case CategoryService:
		return &ServiceObject{}
	case CategoryUser, CategoryGroup:
		return &UserAccountObject{}
	case CategoryFirewall, CategoryCOM, CategoryLog:
		return &FirewallObject{}
	default:
		return nil
	}
}
