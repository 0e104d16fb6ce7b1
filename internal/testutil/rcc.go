// Package testutil writes synthetic RCC datasets for tests.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

var positiveControls = []struct {
	name string
	conc float64
}{
	{"POS_A(128)", 128}, {"POS_B(32)", 32}, {"POS_C(8)", 8},
	{"POS_D(2)", 2}, {"POS_E(0.5)", 0.5}, {"POS_F(0.125)", 0.125},
}

var (
	// HousekeepingGenes have base counts 1000, 2000, 3000 and 4000.
	HousekeepingGenes = []string{"ACTB", "GAPDH", "RPLP0", "TUBB"}
	// EndogenousBase holds the base counts of GENE01..GENE10.
	EndogenousBase = []float64{120, 180, 240, 300, 420, 560, 700, 900, 1500, 2500}
)

// Lane describes one synthetic RCC file.
type Lane struct {
	SampleID   string
	FOVCount   int
	FOVCounted int
	Density    float64
	// Scale multiplies every count, simulating a loading difference.
	Scale float64
	// Seed varies the per-gene noise between lanes.
	Seed int
	// Endogenous overrides EndogenousBase when set.
	Endogenous []float64
}

// DefaultLane passes every default QC bound.
func DefaultLane(sampleID string, scale float64, seed int) Lane {
	return Lane{SampleID: sampleID, FOVCount: 280, FOVCounted: 276, Density: 0.9, Scale: scale, Seed: seed}
}

// ThreeLanes returns lanes s1, s2 and s3 scaled 1, 1.6 and 0.7.
func ThreeLanes() []Lane {
	return []Lane{
		DefaultLane("s1", 1, 0),
		DefaultLane("s2", 1.6, 1),
		DefaultLane("s3", 0.7, 2),
	}
}

func EndogenousName(i int) string {
	return fmt.Sprintf("GENE%02d", i+1)
}

func noise(gene, seed int) float64 {
	return 1 + 0.04*float64((gene*7+seed*3)%5-2)
}

// Render returns the RCC file text. Negative controls are fixed at
// 8, 10, 12, 9, 11 and 10 counts.
func (l Lane) Render() string {
	var b strings.Builder
	b.WriteString("<Header>\nFileVersion,1.7\nSoftwareVersion,4.0.0.3\n</Header>\n\n")
	fmt.Fprintf(&b, "<Sample_Attributes>\nID,%s\nOwner,lab\nDate,20240101\n</Sample_Attributes>\n\n", l.SampleID)
	fmt.Fprintf(&b, "<Lane_Attributes>\nID,%d\nFovCount,%d\nFovCounted,%d\nScannerID,1234\nBindingDensity,%.2f\n</Lane_Attributes>\n\n",
		l.Seed+1, l.FOVCount, l.FOVCounted, l.Density)
	b.WriteString("<Code_Summary>\nCodeClass,Name,Accession,Count\n")
	for _, pos := range positiveControls {
		fmt.Fprintf(&b, "Positive,%s,ERCC_%03d.1,%.0f\n", pos.name, int(pos.conc*8), pos.conc*100*l.Scale)
	}
	for i, v := range []float64{8, 10, 12, 9, 11, 10} {
		fmt.Fprintf(&b, "Negative,NEG_%c(0),ERCC_N%d.1,%.0f\n", 'A'+i, i, v)
	}
	for i, gene := range HousekeepingGenes {
		fmt.Fprintf(&b, "Housekeeping,%s,NM_%d.1,%.0f\n", gene, 100+i, 1000*float64(i+1)*l.Scale*noise(i, l.Seed))
	}
	base := EndogenousBase
	if l.Endogenous != nil {
		base = l.Endogenous
	}
	for i, v := range base {
		fmt.Fprintf(&b, "Endogenous,%s,NM_%d.1,%.0f\n", EndogenousName(i), 200+i, v*l.Scale*noise(i+10, l.Seed))
	}
	b.WriteString("</Code_Summary>\n\n<Messages>\n</Messages>\n")
	return b.String()
}

// WriteRCC writes lane as dir/name and returns the path.
func WriteRCC(tb testing.TB, dir, name string, lane Lane) string {
	tb.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(lane.Render()), 0o600); err != nil {
		tb.Fatalf("write %s: %v", name, err)
	}
	return path
}

// WriteDataset writes each lane as <SampleID>.RCC into a new temp folder.
func WriteDataset(tb testing.TB, lanes ...Lane) string {
	tb.Helper()
	dir := tb.TempDir()
	for _, lane := range lanes {
		WriteRCC(tb, dir, lane.SampleID+".RCC", lane)
	}
	return dir
}

// WriteFile writes content to path, creating parent directories.
func WriteFile(tb testing.TB, path, content string) {
	tb.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		tb.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		tb.Fatalf("write %s: %v", path, err)
	}
}
