package rules

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"time"

	"github.com/sgerhart/aegisflux/analyzer/internal/model"
)

// ErrEntityMismatch is returned when a snapshot is not of the category's entity type
var ErrEntityMismatch = errors.New("entity type does not match category schema")

// Shape is the value shape of a schema field
type Shape int

const (
	ShapeScalar Shape = iota
	ShapeStringList
	ShapeStringMap
)

func (s Shape) String() string {
	switch s {
	case ShapeScalar:
		return "scalar"
	case ShapeStringList:
		return "list"
	case ShapeStringMap:
		return "map"
	default:
		return "unknown"
	}
}

// Value is a field value extracted from a snapshot.
// Pairs is nil when the snapshot's map was nil and non-nil (possibly empty) otherwise.
type Value struct {
	Shape  Shape
	Scalar string
	List   []string
	Pairs  []KeyValue
}

// Field is a named, typed accessor on a category's entity type
type Field struct {
	Name  string
	Shape Shape
	Get   func(model.Entity) (Value, error)
}

func scalar[T model.Entity](name string, get func(T) string) Field {
	return Field{
		Name:  name,
		Shape: ShapeScalar,
		Get: func(e model.Entity) (Value, error) {
			obj, ok, err := entityAs[T](e)
			if err != nil || !ok {
				return Value{Shape: ShapeScalar}, err
			}
			return Value{Shape: ShapeScalar, Scalar: get(obj)}, nil
		},
	}
}

func list[T model.Entity](name string, get func(T) []string) Field {
	return Field{
		Name:  name,
		Shape: ShapeStringList,
		Get: func(e model.Entity) (Value, error) {
			obj, ok, err := entityAs[T](e)
			if err != nil || !ok {
				return Value{Shape: ShapeStringList}, err
			}
			return Value{Shape: ShapeStringList, List: get(obj)}, nil
		},
	}
}

func dict[T model.Entity](name string, get func(T) map[string]string) Field {
	return Field{
		Name:  name,
		Shape: ShapeStringMap,
		Get: func(e model.Entity) (Value, error) {
			obj, ok, err := entityAs[T](e)
			if err != nil || !ok {
				return Value{Shape: ShapeStringMap}, err
			}
			return Value{Shape: ShapeStringMap, Pairs: sortedPairs(get(obj))}, nil
		},
	}
}

// entityAs converts e to the schema's entity type. ok is false for a nil
// snapshot, including a typed nil pointer.
func entityAs[T model.Entity](e model.Entity) (obj T, ok bool, err error) {
	if e == nil {
		return obj, false, nil
	}
	obj, ok = e.(T)
	if !ok {
		return obj, false, fmt.Errorf("%w: got %T, want %T", ErrEntityMismatch, e, obj)
	}
	if v := reflect.ValueOf(obj); v.Kind() == reflect.Pointer && v.IsNil() {
		return obj, false, nil
	}
	return obj, true, nil
}

func sortedPairs(m map[string]string) []KeyValue {
	if m == nil {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]KeyValue, 0, len(m))
	for _, k := range keys {
		pairs = append(pairs, KeyValue{Key: k, Value: m[k]})
	}
	return pairs
}

func formatBool(b bool) string { return strconv.FormatBool(b) }
func formatInt(n int64) string { return strconv.FormatInt(n, 10) }

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

var fileSchema = []Field{
	scalar("Path", func(o *model.FileSystemObject) string { return o.Path }),
	scalar("Size", func(o *model.FileSystemObject) string { return formatInt(o.Size) }),
	scalar("IsDirectory", func(o *model.FileSystemObject) string { return formatBool(o.IsDirectory) }),
	scalar("IsExecutable", func(o *model.FileSystemObject) string { return formatBool(o.IsExecutable) }),
	scalar("IsLink", func(o *model.FileSystemObject) string { return formatBool(o.IsLink) }),
	scalar("Target", func(o *model.FileSystemObject) string { return o.Target }),
	scalar("ContentHash", func(o *model.FileSystemObject) string { return o.ContentHash }),
	scalar("SignatureStatus", func(o *model.FileSystemObject) string { return o.SignatureStatus }),
	scalar("Owner", func(o *model.FileSystemObject) string { return o.Owner }),
	scalar("Group", func(o *model.FileSystemObject) string { return o.Group }),
	scalar("SetUID", func(o *model.FileSystemObject) string { return formatBool(o.SetUID) }),
	scalar("SetGID", func(o *model.FileSystemObject) string { return formatBool(o.SetGID) }),
	scalar("PermissionsString", func(o *model.FileSystemObject) string { return o.PermissionsString }),
	dict("Permissions", func(o *model.FileSystemObject) map[string]string { return o.Permissions }),
	list("Characteristics", func(o *model.FileSystemObject) []string { return o.Characteristics }),
}

var certificateSchema = []Field{
	scalar("StoreLocation", func(o *model.CertificateObject) string { return o.StoreLocation }),
	scalar("StoreName", func(o *model.CertificateObject) string { return o.StoreName }),
	scalar("CertificateHashString", func(o *model.CertificateObject) string { return o.CertificateHashString }),
	scalar("Subject", func(o *model.CertificateObject) string { return o.Subject }),
	scalar("Issuer", func(o *model.CertificateObject) string { return o.Issuer }),
	scalar("SerialNumber", func(o *model.CertificateObject) string { return o.SerialNumber }),
	scalar("NotBefore", func(o *model.CertificateObject) string { return formatTime(o.NotBefore) }),
	scalar("NotAfter", func(o *model.CertificateObject) string { return formatTime(o.NotAfter) }),
	scalar("Pkcs7", func(o *model.CertificateObject) string { return o.Pkcs7 }),
}

var portSchema = []Field{
	scalar("Address", func(o *model.OpenPortObject) string { return o.Address }),
	scalar("Family", func(o *model.OpenPortObject) string { return o.Family }),
	scalar("Type", func(o *model.OpenPortObject) string { return o.Type }),
	scalar("Port", func(o *model.OpenPortObject) string { return formatInt(int64(o.Port)) }),
	scalar("ProcessName", func(o *model.OpenPortObject) string { return o.ProcessName }),
}

var registrySchema = []Field{
	scalar("Key", func(o *model.RegistryObject) string { return o.Key }),
	scalar("View", func(o *model.RegistryObject) string { return o.View }),
	list("Subkeys", func(o *model.RegistryObject) []string { return o.Subkeys }),
	dict("Values", func(o *model.RegistryObject) map[string]string { return o.Values }),
	scalar("PermissionsString", func(o *model.RegistryObject) string { return o.PermissionsString }),
	dict("Permissions", func(o *model.RegistryObject) map[string]string { return o.Permissions }),
}

var serviceSchema = []Field{
	scalar("ServiceName", func(o *model.ServiceObject) string { return o.ServiceName }),
	scalar("DisplayName", func(o *model.ServiceObject) string { return o.DisplayName }),
	scalar("Description", func(o *model.ServiceObject) string { return o.Description }),
	scalar("PathName", func(o *model.ServiceObject) string { return o.PathName }),
	scalar("StartType", func(o *model.ServiceObject) string { return o.StartType }),
	scalar("State", func(o *model.ServiceObject) string { return o.State }),
	scalar("StartName", func(o *model.ServiceObject) string { return o.StartName }),
	scalar("AcceptStop", func(o *model.ServiceObject) string { return formatBool(o.AcceptStop) }),
	scalar("ProcessID", func(o *model.ServiceObject) string { return formatInt(int64(o.ProcessID)) }),
	scalar("ServiceType", func(o *model.ServiceObject) string { return o.ServiceType }),
	list("Dependencies", func(o *model.ServiceObject) []string { return o.Dependencies }),
	scalar("InstallDate", func(o *model.ServiceObject) string { return o.InstallDate }),
}

var userSchema = []Field{
	scalar("Name", func(o *model.UserAccountObject) string { return o.Name }),
	scalar("AccountType", func(o *model.UserAccountObject) string { return o.AccountType }),
	scalar("Caption", func(o *model.UserAccountObject) string { return o.Caption }),
	scalar("Description", func(o *model.UserAccountObject) string { return o.Description }),
	scalar("Disabled", func(o *model.UserAccountObject) string { return formatBool(o.Disabled) }),
	scalar("Domain", func(o *model.UserAccountObject) string { return o.Domain }),
	scalar("FullName", func(o *model.UserAccountObject) string { return o.FullName }),
	scalar("HomeDirectory", func(o *model.UserAccountObject) string { return o.HomeDirectory }),
	scalar("Shell", func(o *model.UserAccountObject) string { return o.Shell }),
	scalar("UID", func(o *model.UserAccountObject) string { return o.UID }),
	scalar("GID", func(o *model.UserAccountObject) string { return o.GID }),
	scalar("SID", func(o *model.UserAccountObject) string { return o.SID }),
	scalar("LocalAccount", func(o *model.UserAccountObject) string { return formatBool(o.LocalAccount) }),
	scalar("Lockout", func(o *model.UserAccountObject) string { return formatBool(o.Lockout) }),
	scalar("PasswordChangeable", func(o *model.UserAccountObject) string { return formatBool(o.PasswordChangeable) }),
	scalar("PasswordExpires", func(o *model.UserAccountObject) string { return formatBool(o.PasswordExpires) }),
	scalar("PasswordRequired", func(o *model.UserAccountObject) string { return formatBool(o.PasswordRequired) }),
	scalar("Privileged", func(o *model.UserAccountObject) string { return formatBool(o.Privileged) }),
	list("Groups", func(o *model.UserAccountObject) []string { return o.Groups }),
	dict("Properties", func(o *model.UserAccountObject) map[string]string { return o.Properties }),
}

var firewallSchema = []Field{
	scalar("Name", func(o *model.FirewallObject) string { return o.Name }),
	scalar("FriendlyName", func(o *model.FirewallObject) string { return o.FriendlyName }),
	scalar("Action", func(o *model.FirewallObject) string { return o.Action }),
	scalar("ApplicationName", func(o *model.FirewallObject) string { return o.ApplicationName }),
	scalar("Description", func(o *model.FirewallObject) string { return o.Description }),
	scalar("Direction", func(o *model.FirewallObject) string { return o.Direction }),
	scalar("EdgeTraversal", func(o *model.FirewallObject) string { return formatBool(o.EdgeTraversal) }),
	scalar("Grouping", func(o *model.FirewallObject) string { return o.Grouping }),
	scalar("IsEnable", func(o *model.FirewallObject) string { return formatBool(o.IsEnable) }),
	scalar("Profiles", func(o *model.FirewallObject) string { return o.Profiles }),
	scalar("Protocol", func(o *model.FirewallObject) string { return o.Protocol }),
	scalar("Scope", func(o *model.FirewallObject) string { return o.Scope }),
	scalar("ServiceName", func(o *model.FirewallObject) string { return o.ServiceName }),
	list("LocalAddresses", func(o *model.FirewallObject) []string { return o.LocalAddresses }),
	list("LocalPorts", func(o *model.FirewallObject) []string { return o.LocalPorts }),
	list("RemoteAddresses", func(o *model.FirewallObject) []string { return o.RemoteAddresses }),
	list("RemotePorts", func(o *model.FirewallObject) []string { return o.RemotePorts }),
}

// schemas maps every category to its field table. GROUP shares the user
// schema; COM and LOG share the firewall schema.
var schemas = map[model.Category][]Field{
	model.CategoryFile:        fileSchema,
	model.CategoryCertificate: certificateSchema,
	model.CategoryPort:        portSchema,
	model.CategoryRegistry:    registrySchema,
	model.CategoryService:     serviceSchema,
	model.CategoryUser:        userSchema,
	model.CategoryGroup:       userSchema,
	model.CategoryFirewall:    firewallSchema,
	model.CategoryCOM:         firewallSchema,
	model.CategoryLog:         firewallSchema,
}

// SchemaFor returns the ordered field table for a category (nil for UNKNOWN)
func SchemaFor(c model.Category) []Field {
	return schemas[c]
}

// LookupField finds a field by name in the category's schema
func LookupField(c model.Category, name string) (Field, bool) {
	for _, f := range schemas[c] {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}
