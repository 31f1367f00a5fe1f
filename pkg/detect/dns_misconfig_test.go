// pkg/detect/dns_misconfig_test.go
package detect

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/risktor/risktor/pkg/asset"
)

type fakeResolver struct {
	txt        map[string][]string
	txtErr     error
	resolves   map[string]bool
	resolveErr error
}

func (f *fakeResolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	if f.txtErr != nil {
		return nil, f.txtErr
	}
	return f.txt[name], nil
}

func (f *fakeResolver) Resolves(ctx context.Context, name string) (bool, error) {
	if f.resolveErr != nil {
		return false, f.resolveErr
	}
	return f.resolves[name], nil
}

func domainAsset(records map[string][]string) *asset.EnrichedAsset {
	return &asset.EnrichedAsset{
		Asset:      asset.Asset{Value: "example.com", Type: asset.TypeDomain},
		DNSRecords: records,
	}
}

func TestDNSMisconfigDetector_Clean(t *testing.T) {
	d := &DNSMisconfigDetector{resolver: &fakeResolver{
		txt: map[string][]string{"_dmarc.example.com": {"v=DMARC1; p=reject"}},
	}}
	ea := domainAsset(map[string][]string{
		"TXT": {"v=spf1 include:_spf.example.com ~all"},
	})
	require.Empty(t, d.Detect(context.Background(), ea))
}

func TestDNSMisconfigDetector_MissingSPF(t *testing.T) {
	d := &DNSMisconfigDetector{resolver: &fakeResolver{
		txt: map[string][]string{"_dmarc.example.com": {"v=DMARC1; p=none"}},
	}}
	ea := domainAsset(map[string][]string{"A": {"192.0.2.10"}})

	findings := d.Detect(context.Background(), ea)
	require.Len(t, findings, 1)
	require.Equal(t, asset.SeverityMedium, findings[0].Severity)
	require.Equal(t, asset.CategoryDNS, findings[0].Category)
	require.Contains(t, findings[0].Description, "SPF")
}

func TestDNSMisconfigDetector_MissingDMARC(t *testing.T) {
	d := &DNSMisconfigDetector{resolver: &fakeResolver{}}
	ea := domainAsset(map[string][]string{
		"TXT": {"v=spf1 -all"},
	})

	findings := d.Detect(context.Background(), ea)
	require.Len(t, findings, 1)
	require.Equal(t, asset.SeverityMedium, findings[0].Severity)
	require.Contains(t, findings[0].Description, "DMARC")
}

func TestDNSMisconfigDetector_DMARCLookupErrorIsNotAFinding(t *testing.T) {
	d := &DNSMisconfigDetector{resolver: &fakeResolver{
		txtErr: errors.New("servfail"),
	}}
	ea := domainAsset(map[string][]string{
		"TXT": {"v=spf1 -all"},
	})
	require.Empty(t, d.Detect(context.Background(), ea))
}

func TestDNSMisconfigDetector_DanglingCNAME(t *testing.T) {
	d := &DNSMisconfigDetector{resolver: &fakeResolver{
		txt:      map[string][]string{"_dmarc.example.com": {"v=DMARC1"}},
		resolves: map[string]bool{"old-bucket.s3.amazonaws.com": false},
	}}
	ea := domainAsset(map[string][]string{
		"TXT":   {"v=spf1 -all"},
		"CNAME": {"Old-Bucket.s3.amazonaws.com."},
	})

	findings := d.Detect(context.Background(), ea)
	require.Len(t, findings, 1)
	require.Equal(t, asset.SeverityHigh, findings[0].Severity)
	require.Contains(t, findings[0].Description, "old-bucket.s3.amazonaws.com")
}

func TestDNSMisconfigDetector_ResolvingCNAMEIsFine(t *testing.T) {
	d := &DNSMisconfigDetector{resolver: &fakeResolver{
		txt:      map[string][]string{"_dmarc.example.com": {"v=DMARC1"}},
		resolves: map[string]bool{"app.herokuapp.com": true},
	}}
	ea := domainAsset(map[string][]string{
		"TXT":   {"v=spf1 -all"},
		"CNAME": {"app.herokuapp.com"},
	})
	require.Empty(t, d.Detect(context.Background(), ea))
}

func TestDNSMisconfigDetector_ResolverErrorIsNotEvidence(t *testing.T) {
	d := &DNSMisconfigDetector{resolver: &fakeResolver{
		txt:        map[string][]string{"_dmarc.example.com": {"v=DMARC1"}},
		resolveErr: errors.New("timeout"),
	}}
	ea := domainAsset(map[string][]string{
		"TXT":   {"v=spf1 -all"},
		"CNAME": {"gone.github.io"},
	})
	require.Empty(t, d.Detect(context.Background(), ea))
}

func TestDNSMisconfigDetector_SkipsNonDNSAssets(t *testing.T) {
	d := &DNSMisconfigDetector{resolver: &fakeResolver{}}

	ip := &asset.EnrichedAsset{Asset: asset.Asset{Value: "192.0.2.10", Type: asset.TypeIPAddress}}
	require.Nil(t, d.Detect(context.Background(), ip))

	noRecords := &asset.EnrichedAsset{Asset: asset.Asset{Value: "example.com", Type: asset.TypeDomain}}
	require.Nil(t, d.Detect(context.Background(), noRecords))
}
