package conf

import (
	"fmt"
	"os"
	"reflect"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Presets is a set of named configurations loaded from a YAML file.
// Each entry maps config field names to override values.
type Presets map[string]map[string]interface{}

// LoadPresets parses the YAML preset file.
func LoadPresets(filePath string) (Presets, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	p := Presets{}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("error parsing %s: %v", filePath, err)
	}
	return p, nil
}

// Names lists the available presets in order.
func (p Presets) Names() []string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Apply overlays the named preset onto the config. Keys which do not
// name a config field are errors so that typos in preset files fail
// fast rather than being silently ignored.
func (p Presets) Apply(c Config, name string) (Config, error) {
	preset, ok := p[name]
	if !ok {
		return c, fmt.Errorf("no such configuration %q, choose from: %s",
			name, strings.Join(p.Names(), " "))
	}
	keys := make([]string, 0, len(preset))
	for key := range preset {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		var err error
		if c, err = c.setValue(key, preset[key]); err != nil {
			return c, fmt.Errorf("preset %q: %v", name, err)
		}
	}
	return c, nil
}

func (c Config) setValue(key string, val interface{}) (Config, error) {
	s := reflect.ValueOf(&c).Elem()
	f := s.FieldByName(key)
	if !f.IsValid() {
		return c, fmt.Errorf("couldn't recognise option %q", key)
	}
	switch v := val.(type) {
	case bool:
		if f.Kind() != reflect.Bool {
			return c, fmt.Errorf("option %q: expected %v value", key, f.Kind())
		}
		f.SetBool(v)
	case int:
		switch f.Kind() {
		case reflect.Int, reflect.Int64:
			f.SetInt(int64(v))
		case reflect.Float64:
			f.SetFloat(float64(v))
		default:
			return c, fmt.Errorf("option %q: expected %v value", key, f.Kind())
		}
	case float64:
		if f.Kind() != reflect.Float64 {
			return c, fmt.Errorf("option %q: expected %v value", key, f.Kind())
		}
		f.SetFloat(v)
	case string:
		if f.Kind() != reflect.String {
			return c.SetString(key, v)
		}
		f.SetString(v)
	case []interface{}:
		vals := make([]string, len(v))
		for i, item := range v {
			vals[i] = fmt.Sprint(item)
		}
		return c.setSlice(key, vals)
	default:
		return c, fmt.Errorf("option %q: unsupported value %v", key, val)
	}
	return c, nil
}
