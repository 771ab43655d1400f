// Package namenorm maps raw manufacturer names onto the registry's
// manufacturer vocabulary by approximate string similarity.
//
// Names are compared on a folded key: accents stripped, case folded,
// punctuation removed, and trailing legal-form tokens (INC, LLC, GMBH, ...)
// dropped. The similarity of two keys is the better of their plain and
// token-sorted edit ratios on a 0-100 scale.
package namenorm
