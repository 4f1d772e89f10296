package catalog

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// WriteTable prints one row per entry with the attributes most useful for
// picking configurations. Absent values are shown as "-".
func WriteTable(w io.Writer, entries []Entry) error {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "Config\tP (GPa)\tT (K)\tState\trs\tMol %\tMethod\tModel\tPotential Energy (eV)\tDatasets")
	for _, e := range entries {
		a := e.Attributes
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			plain(a["config_number"]),
			plain(a["pressure"]),
			plain(a["temperature"]),
			plain(a["state"]),
			fixed(a["rs"], 2),
			fixed(a["molecular_percentage"], 1),
			plain(a["method"]),
			plain(a["modelname"]),
			fixed(a["potential_energy"], 4),
			strings.Join(e.Datasets, ", "),
		)
	}
	return tw.Flush()
}

func plain(v any) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprint(v)
}

func fixed(v any, digits int) string {
	switch x := v.(type) {
	case float64:
		return fmt.Sprintf("%.*f", digits, x)
	case int:
		return fmt.Sprintf("%.*f", digits, float64(x))
	}
	return plain(v)
}
