package geoserver

import (
	"net/url"
	"sort"
	"strings"

	"github.com/ngds/geobridge/internal/domain"
)

// JSON shapes of the GeoServer REST API.

type restNamespaceBody struct {
	Namespace restNamespace `json:"namespace"`
}

type restNamespace struct {
	Prefix string `json:"prefix"`
	URI    string `json:"uri"`
}

type restName struct {
	Name string `json:"name"`
}

type restDatastoreBody struct {
	DataStore restDatastore `json:"dataStore"`
}

type restDatastore struct {
	Name                 string         `json:"name"`
	Description          string         `json:"description,omitempty"`
	Type                 string         `json:"type,omitempty"`
	Enabled              bool           `json:"enabled"`
	Workspace            *restName      `json:"workspace,omitempty"`
	ConnectionParameters *restEntryList `json:"connectionParameters,omitempty"`
}

type restEntryList struct {
	Entry []restEntry `json:"entry"`
}

// restEntry is a key-value pair, {"@key": ..., "$": ...} on the wire.
type restEntry struct {
	Key   string `json:"@key"`
	Value string `json:"$"`
}

type restLayerBody struct {
	Layer restLayer `json:"layer"`
}

type restLayer struct {
	Name         string        `json:"name,omitempty"`
	Type         string        `json:"type,omitempty"`
	DefaultStyle *restName     `json:"defaultStyle,omitempty"`
	Resource     *restResource `json:"resource,omitempty"`
}

type restResource struct {
	Class string `json:"@class"`
	Name  string `json:"name"`
	Href  string `json:"href"`
}

type restStyleBody struct {
	Style restName `json:"style"`
}

// entries converts a parameter map to entries in key order.
func entries(m map[string]string) []restEntry {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]restEntry, 0, len(keys))
	for _, k := range keys {
		out = append(out, restEntry{Key: k, Value: m[k]})
	}
	return out
}

func entryMap(list *restEntryList) map[string]string {
	out := make(map[string]string)
	if list == nil {
		return out
	}
	for _, e := range list.Entry {
		out[e.Key] = e.Value
	}
	return out
}

func (d *restDatastore) toDomain(workspace string) *domain.Store {
	ws := workspace
	if d.Workspace != nil && d.Workspace.Name != "" {
		ws = d.Workspace.Name
	}
	return &domain.Store{
		Name:       d.Name,
		Workspace:  ws,
		Type:       d.Type,
		Enabled:    d.Enabled,
		Connection: domain.ConnectionParamsFromEntries(entryMap(d.ConnectionParameters)),
	}
}

func (l *restLayer) toDomain(workspace string) *domain.Layer {
	layer := &domain.Layer{
		Name:      l.Name,
		Workspace: workspace,
		Type:      l.Type,
	}
	if l.DefaultStyle != nil {
		layer.DefaultStyle = l.DefaultStyle.Name
	}
	if l.Resource != nil {
		layer.ResourceHref = l.Resource.Href
		layer.Store = storeFromHref(l.Resource.Href)
	}
	return layer
}

// storeFromHref extracts the store name from a resource link such as
// .../workspaces/NGDS/datastores/datastore/featuretypes/wells.json.
func storeFromHref(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+1 < len(parts); i++ {
		if parts[i] == "datastores" {
			return parts[i+1]
		}
	}
	return ""
}
