package testutil

import (
	"fmt"
	"strings"
)

// DepartureBoardXML builds a GetDepBoardWithDetails SOAP response for crs
// with the given number of services. Each service calls at one station.
func DepartureBoardXML(crs, locationName string, services int) string {
	var b strings.Builder
	for i := 1; i <= services; i++ {
		fmt.Fprintf(&b, `
<lt8:service>
  <lt4:std>10:%02d</lt4:std>
  <lt4:etd>On time</lt4:etd>
  <lt4:platform>%d</lt4:platform>
  <lt4:operator>London North Eastern Railway</lt4:operator>
  <lt4:operatorCode>GR</lt4:operatorCode>
  <lt4:length>9</lt4:length>
  <lt4:serviceID>svc-%s-%d</lt4:serviceID>
  <lt5:origin><lt4:location><lt4:locationName>%s</lt4:locationName><lt4:crs>%s</lt4:crs></lt4:location></lt5:origin>
  <lt5:destination><lt4:location><lt4:locationName>London Kings Cross</lt4:locationName><lt4:crs>KGX</lt4:crs></lt4:location></lt5:destination>
  <lt8:subsequentCallingPoints>
    <lt8:callingPointList>
      <lt8:callingPoint>
        <lt8:locationName>York</lt8:locationName>
        <lt8:crs>YRK</lt8:crs>
        <lt8:st>11:%02d</lt8:st>
        <lt8:et>On time</lt8:et>
      </lt8:callingPoint>
    </lt8:callingPointList>
  </lt8:subsequentCallingPoints>
</lt8:service>`, i, i, crs, i, locationName, crs, i)
	}

	trainServices := ""
	if services > 0 {
		trainServices = "<lt8:trainServices>" + b.String() + "</lt8:trainServices>"
	}

	return fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
<soap:Body>
<GetDepBoardWithDetailsResponse xmlns="http://thalesgroup.com/RTTI/2017-10-01/ldb/">
<GetStationBoardResult xmlns:lt4="http://thalesgroup.com/RTTI/2015-11-27/ldb/types" xmlns:lt5="http://thalesgroup.com/RTTI/2016-02-16/ldb/types" xmlns:lt8="http://thalesgroup.com/RTTI/2021-11-01/ldb/types">
<lt4:generatedAt>2024-01-14T10:00:00.1234567+00:00</lt4:generatedAt>
<lt4:locationName>%s</lt4:locationName>
<lt4:crs>%s</lt4:crs>
%s
</GetStationBoardResult>
</GetDepBoardWithDetailsResponse>
</soap:Body>
</soap:Envelope>`, locationName, crs, trainServices)
}

// SOAPFaultXML builds a SOAP 1.1 fault response.
func SOAPFaultXML(code, message string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
<soap:Body>
<soap:Fault><faultcode>%s</faultcode><faultstring>%s</faultstring></soap:Fault>
</soap:Body>
</soap:Envelope>`, code, message)
}
