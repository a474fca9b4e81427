package storage

import (
	"context"
	"io"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"

	"github.com/ngds/geobridge/internal/ports/output"
)

// AzureStorage implements StyleSource for Azure Blob Storage.
type AzureStorage struct {
	client    *azblob.Client
	container string
	prefix    string
}

// AzureConfig holds Azure Blob Storage configuration.
type AzureConfig struct {
	Container        string
	AccountName      string
	AccountKey       string
	ConnectionString string
	Prefix           string
}

// NewAzureStorage creates a new Azure Blob Storage style source.
func NewAzureStorage(cfg AzureConfig) (*AzureStorage, error) {
	var client *azblob.Client

	if cfg.ConnectionString != "" {
		c, err := azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
		if err != nil {
			return nil, err
		}
		client = c
	} else {
		url := "https://" + cfg.AccountName + ".blob.core.windows.net/"
		cred, err := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
		if err != nil {
			return nil, err
		}
		c, err := azblob.NewClientWithSharedKeyCredential(url, cred, nil)
		if err != nil {
			return nil, err
		}
		client = c
	}

	return &AzureStorage{
		client:    client,
		container: cfg.Container,
		prefix:    strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// List returns all SLD blobs in the container under the prefix.
func (s *AzureStorage) List(ctx context.Context) ([]output.StyleObject, error) {
	var objects []output.StyleObject

	pager := s.client.NewListBlobsFlatPager(s.container, &azblob.ListBlobsFlatOptions{
		Prefix: &s.prefix,
	})

	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}

		for _, blob := range page.Segment.BlobItems {
			if obj, ok := s.blobToStyleObject(blob); ok {
				objects = append(objects, obj)
			}
		}
	}

	return objects, nil
}

// blobToStyleObject converts an Azure blob to a StyleObject.
// Returns false if the blob is not an SLD document.
func (s *AzureStorage) blobToStyleObject(blob *container.BlobItem) (output.StyleObject, bool) {
	if blob.Name == nil || !isStyle(*blob.Name) {
		return output.StyleObject{}, false
	}

	relKey := strings.TrimPrefix(strings.TrimPrefix(*blob.Name, s.prefix), "/")
	obj := output.StyleObject{
		Key:  relKey,
		Name: styleName(relKey),
	}

	if p := blob.Properties; p != nil {
		if p.ContentLength != nil {
			obj.Size = *p.ContentLength
		}
		if p.LastModified != nil {
			obj.LastModified = p.LastModified.Unix()
		}
		if p.ETag != nil {
			obj.ETag = string(*p.ETag)
		}
	}
	return obj, true
}

// GetReader returns a reader for the given style.
func (s *AzureStorage) GetReader(ctx context.Context, key string) (io.ReadCloser, error) {
	resp, err := s.client.DownloadStream(ctx, s.container, s.fullKey(key), nil)
	if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
		return nil, missingStyle(key)
	}
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Exists checks if a style blob exists.
func (s *AzureStorage) Exists(ctx context.Context, key string) (bool, error) {
	blob := s.client.ServiceClient().NewContainerClient(s.container).NewBlobClient(s.fullKey(key))
	_, err := blob.GetProperties(ctx, nil)
	if err == nil {
		return true, nil
	}
	if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
		return false, nil
	}
	return false, err
}

// fullKey returns the full blob name including prefix.
func (s *AzureStorage) fullKey(key string) string {
	key = styleKey(key)
	if s.prefix == "" {
		return key
	}
	return s.prefix + "/" + key
}
