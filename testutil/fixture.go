package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// VaccinationsCSV is a small extract of the country vaccinations dataset.
// Wales has no measures at all; England and Wales share a vaccine
// combination with the United Kingdom.
const VaccinationsCSV = `country,iso_code,date,total_vaccinations,people_vaccinated,people_fully_vaccinated,daily_vaccinations_raw,daily_vaccinations,total_vaccinations_per_hundred,people_vaccinated_per_hundred,people_fully_vaccinated_per_hundred,daily_vaccinations_per_million,vaccines,source_name,source_website
Albania,ALB,2021-01-10,0.0,0.0,,,,0.0,0.0,,,Pfizer/BioNTech,Ministry of Health,https://shendetesia.gov.al/
Albania,ALB,2021-01-11,,,,,64.0,,,,22.0,Pfizer/BioNTech,Ministry of Health,https://shendetesia.gov.al/
Albania,ALB,2021-01-12,128.0,128.0,,,64.0,0.0,0.0,,22.0,Pfizer/BioNTech,Ministry of Health,https://shendetesia.gov.al/
Canada,CAN,2020-12-14,5.0,5.0,,,,0.0,0.0,,,"Moderna, Pfizer/BioNTech",Government of Canada,https://covid19tracker.ca/vaccinationtracker.html
Canada,CAN,2020-12-15,723.0,723.0,,718.0,718.0,0.0,0.0,,19.0,"Moderna, Pfizer/BioNTech",Government of Canada,https://covid19tracker.ca/vaccinationtracker.html
Canada,CAN,2020-12-16,3023.0,3023.0,,2300.0,1509.0,0.01,0.01,,40.0,"Moderna, Pfizer/BioNTech",Government of Canada,https://covid19tracker.ca/vaccinationtracker.html
Canada,CAN,2020-12-17,7279.0,7279.0,,4256.0,2425.0,0.02,0.02,,64.0,"Moderna, Pfizer/BioNTech",Government of Canada,https://covid19tracker.ca/vaccinationtracker.html
Chile,CHL,2020-12-24,420.0,420.0,,,,0.0,0.0,,,Pfizer/BioNTech,Ministry of Health,https://www.gob.cl/yomevacuno/
Chile,CHL,2020-12-25,5198.0,5198.0,,4778.0,4778.0,0.03,0.03,,250.0,Pfizer/BioNTech,Ministry of Health,https://www.gob.cl/yomevacuno/
Denmark,DNK,2020-12-27,1722.0,1722.0,,,,0.03,0.03,,,Pfizer/BioNTech,Statens Serum Institut,https://covid19.ssi.dk/
Denmark,DNK,2020-12-28,2190.0,2190.0,,468.0,468.0,0.04,0.04,,81.0,Pfizer/BioNTech,Statens Serum Institut,https://covid19.ssi.dk/
England,OWID_ENG,2021-01-10,2286572.0,1959151.0,327421.0,,,4.06,3.48,0.58,,"Oxford/AstraZeneca, Pfizer/BioNTech",Government of the United Kingdom,https://coronavirus.data.gov.uk/details/healthcare
England,OWID_ENG,2021-01-17,3857266.0,3505754.0,351512.0,,224385.0,6.85,6.23,0.62,3986.0,"Oxford/AstraZeneca, Pfizer/BioNTech",Government of the United Kingdom,https://coronavirus.data.gov.uk/details/healthcare
Germany,DEU,2020-12-27,24355.0,24344.0,,,,0.03,0.03,,,Pfizer/BioNTech,Robert Koch Institut,https://impfdashboard.de/
Germany,DEU,2020-12-28,42421.0,42409.0,,18066.0,18066.0,0.05,0.05,,216.0,Pfizer/BioNTech,Robert Koch Institut,https://impfdashboard.de/
Germany,DEU,2020-12-29,92391.0,92369.0,,49970.0,34018.0,0.11,0.11,,406.0,Pfizer/BioNTech,Robert Koch Institut,https://impfdashboard.de/
Israel,ISR,2020-12-19,0.0,0.0,,,,0.0,0.0,,,"Moderna, Pfizer/BioNTech",Ministry of Health,https://datadashboard.health.gov.il/COVID-19/general
Israel,ISR,2020-12-20,7004.0,7004.0,,7004.0,7004.0,0.08,0.08,,809.0,"Moderna, Pfizer/BioNTech",Ministry of Health,https://datadashboard.health.gov.il/COVID-19/general
Israel,ISR,2020-12-21,28415.0,28415.0,,21411.0,14208.0,0.33,0.33,,1642.0,"Moderna, Pfizer/BioNTech",Ministry of Health,https://datadashboard.health.gov.il/COVID-19/general
United States,USA,2020-12-20,556208.0,556208.0,,,,0.17,0.17,,,"Moderna, Pfizer/BioNTech",Centers for Disease Control and Prevention,https://covid.cdc.gov/covid-data-tracker/#vaccinations
United States,USA,2020-12-21,614117.0,614117.0,,57909.0,57909.0,0.18,0.18,,173.0,"Moderna, Pfizer/BioNTech",Centers for Disease Control and Prevention,https://covid.cdc.gov/covid-data-tracker/#vaccinations
United States,USA,2020-12-23,1008025.0,1008025.0,,,150606.0,0.3,0.3,,450.0,"Moderna, Pfizer/BioNTech",Centers for Disease Control and Prevention,https://covid.cdc.gov/covid-data-tracker/#vaccinations
United Kingdom,GBR,2021-01-10,2677971.0,2286572.0,391399.0,,,3.94,3.37,0.58,,"Oxford/AstraZeneca, Pfizer/BioNTech",Government of the United Kingdom,https://coronavirus.data.gov.uk/details/healthcare
United Kingdom,GBR,2021-01-11,2843815.0,2431648.0,412167.0,165844.0,165844.0,4.19,3.58,0.61,2443.0,"Oxford/AstraZeneca, Pfizer/BioNTech",Government of the United Kingdom,https://coronavirus.data.gov.uk/details/healthcare
Wales,OWID_WLS,2021-01-10,,,,,,,,,,"Oxford/AstraZeneca, Pfizer/BioNTech",Government of the United Kingdom,https://coronavirus.data.gov.uk/details/healthcare
Wales,OWID_WLS,2021-01-11,,,,,,,,,,"Oxford/AstraZeneca, Pfizer/BioNTech",Government of the United Kingdom,https://coronavirus.data.gov.uk/details/healthcare
`

// Header returns the fixture's header line, newline included.
func Header() string {
	return VaccinationsCSV[:strings.IndexByte(VaccinationsCSV, '\n')+1]
}

// Row is one 2021-01-10 record for country with the given vaccine
// combination and total vaccinations. Daily vaccinations equal the total.
func Row(country, vaccines string, total float64) string {
	v := strconv.FormatFloat(total, 'f', 1, 64)
	return fmt.Sprintf("%s,,2021-01-10,%s,%s,,,%s,,,,,%q,Ministry of Health,https://example.org/\n",
		country, v, v, v, vaccines)
}

// Reader returns the fixture as an io.Reader.
func Reader() *strings.Reader {
	return strings.NewReader(VaccinationsCSV)
}

// WriteFixture writes the fixture into a temp dir and returns its path.
func WriteFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "country_vaccinations.csv")
	require.NoError(t, os.WriteFile(path, []byte(VaccinationsCSV), 0o644))
	return path
}
