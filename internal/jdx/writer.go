package jdx

import (
	"bufio"
	"errors"
	"io"
	"math"
	"strconv"
	"strings"
)

// Number of peaks written per line of the peak table
const peaksPerLine = 5

// Write writes the spectrum as a JCAMP-DX file that can be read back
// with Read. Intensities are scaled to 0..9999 and rounded.
func Write(writer io.Writer, s Spectrum) error {
	if s.name == `` {
		return errors.New("jdx: spectrum without formula cannot be written")
	}
	formula := strings.ReplaceAll(s.name, `_`, ` `)
	peaks := s.NonZero()

	w := bufio.NewWriter(writer)
	w.WriteString("##TITLE=" + formula + "\n")
	w.WriteString("##JCAMP-DX=4.24\n")
	w.WriteString("##DATA TYPE=MASS SPECTRUM\n")
	w.WriteString("##ORIGIN=specfit\n")
	w.WriteString(molFormTag + formula + "\n")
	w.WriteString("##XUNITS=M/Z\n")
	w.WriteString("##YUNITS=RELATIVE ABUNDANCE\n")
	w.WriteString("##NPOINTS=" + strconv.Itoa(len(peaks)) + "\n")
	w.WriteString("##PEAK " + peakTableTag + "\n")
	for i, p := range peaks {
		w.WriteString(strconv.Itoa(p.MZ))
		w.WriteByte(',')
		w.WriteString(strconv.FormatFloat(math.Round(p.Intensity*fullScale), 'f', -1, 64))
		if (i+1)%peaksPerLine == 0 || i == len(peaks)-1 {
			w.WriteByte('\n')
		} else {
			w.WriteByte(' ')
		}
	}
	w.WriteString(endTag + "\n")
	return w.Flush()
}
