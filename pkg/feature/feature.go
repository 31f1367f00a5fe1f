// Package feature turns an enriched asset plus its findings into the fixed
// numeric vector the risk scorer consumes. The vector order is a contract
// shared with the model artifacts; reordering it silently breaks scoring,
// which is why the order lives here once and everything else validates
// against it.
package feature

import (
	"github.com/risktor/risktor/pkg/asset"
	"github.com/risktor/risktor/pkg/fingerprint"
)

// Count is the length of the feature vector.
const Count = 11

// Names lists the features in artifact order. Index i of every Vector is
// the value of Names[i].
var Names = [Count]string{
	"open_ports_count",
	"has_ssh_open",
	"has_rdp_open",
	"has_database_ports_open",
	"ssl_days_until_expiry",
	"ssl_cert_is_self_signed",
	"outdated_software_count",
	"breach_history_count",
	"http_security_headers_score",
	"exposure_type_score",
	"dns_misconfig_count",
}

// Vector is one asset's feature values, ordered as Names.
type Vector [Count]float64

// noCertSentinel stands in for days-until-expiry when no certificate was
// observed. Matches the value the model was trained with.
const noCertSentinel = 9999

// databasePorts are the listener ports that mark an exposed datastore.
var databasePorts = []int{1433, 3306, 5432, 6379, 27017}

// Extract computes the feature vector for one asset. It is total: every
// absent enrichment field maps to a benign default here, so downstream
// scoring never sees a partial vector. Neither input is mutated.
func Extract(ea *asset.EnrichedAsset, findings []asset.Finding) Vector {
	var v Vector

	v[0] = float64(len(ea.OpenPorts))
	v[1] = boolFeature(ea.HasOpenPort(22))
	v[2] = boolFeature(ea.HasOpenPort(3389))
	v[3] = boolFeature(hasDatabasePort(ea))

	v[4] = noCertSentinel
	if ea.TLS != nil {
		v[4] = float64(ea.TLS.DaysUntilExpiry)
		v[5] = boolFeature(ea.TLS.IsSelfSigned)
	}

	v[6] = float64(fingerprint.OutdatedCount(ea.Technologies))

	if ea.BreachCount != nil {
		v[7] = float64(*ea.BreachCount)
	}

	v[8] = float64(ea.HTTP.HeaderScore())
	v[9] = float64(exposureScore(ea))
	v[10] = float64(countDNSFindings(findings))

	return v
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func hasDatabasePort(ea *asset.EnrichedAsset) bool {
	for _, port := range databasePorts {
		if ea.HasOpenPort(port) {
			return true
		}
	}
	return false
}

// exposureScore is a 1-5 ordinal: domains are the least exposed surface,
// bare IPs the most, and a wide-open port range bumps the score further.
func exposureScore(ea *asset.EnrichedAsset) int {
	score := 1
	switch ea.Type {
	case asset.TypeSubdomain:
		score = 2
	case asset.TypeIPAddress:
		score = 3
	}
	if len(ea.OpenPorts) > 5 {
		score++
	}
	if len(ea.OpenPorts) > 10 {
		score++
	}
	if score > 5 {
		score = 5
	}
	return score
}

func countDNSFindings(findings []asset.Finding) int {
	n := 0
	for _, f := range findings {
		if f.Category == asset.CategoryDNS {
			n++
		}
	}
	return n
}
